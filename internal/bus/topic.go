package bus

import (
	"fmt"

	"main/internal/schema"
)

// TopicKind discriminates the topic namespaces on the bus.
type TopicKind uint8

const (
	TopicUnknown TopicKind = iota
	TopicTicks
	TopicBars
	TopicAccount
)

// Topic identifies a fan-out stream. Topics are comparable and used
// as map keys.
type Topic struct {
	Kind       TopicKind
	Symbol     schema.SymbolID
	Resolution schema.Resolution
	Account    schema.AccountID
}

// TickTopic is the trade/quote stream for one symbol.
func TickTopic(symbol schema.SymbolID) Topic {
	return Topic{Kind: TopicTicks, Symbol: symbol}
}

// BarTopic is the consolidated bar stream for one symbol at one
// resolution.
func BarTopic(symbol schema.SymbolID, res schema.Resolution) Topic {
	return Topic{Kind: TopicBars, Symbol: symbol, Resolution: res}
}

// AccountTopic carries order acks, fills and position snapshots for
// one account.
func AccountTopic(account schema.AccountID) Topic {
	return Topic{Kind: TopicAccount, Account: account}
}

func (t Topic) String() string {
	switch t.Kind {
	case TopicTicks:
		return fmt.Sprintf("ticks/%d", t.Symbol)
	case TopicBars:
		return fmt.Sprintf("bars/%d/%s", t.Symbol, t.Resolution)
	case TopicAccount:
		return fmt.Sprintf("account/%d", t.Account)
	default:
		return "unknown"
	}
}
