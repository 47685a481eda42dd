package mutation

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Kind is the closed set of action variants. The value is the wire tag.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMove
	KindBreakBlock
	KindPlaceBlock
	KindCraft
	KindHit
	KindEat
	KindCancel
	KindStoreItems
	KindSelectItem
	KindReplaceBlock
	KindIncrementalBreak
	KindSetBlock
	KindGrow
	KindTakeDamage
)

var kindNames = map[Kind]string{
	KindMove:             "MOVE",
	KindBreakBlock:       "BREAK_BLOCK",
	KindPlaceBlock:       "PLACE_BLOCK",
	KindCraft:            "CRAFT",
	KindHit:              "HIT",
	KindEat:              "EAT",
	KindCancel:           "CANCEL",
	KindStoreItems:       "STORE_ITEMS",
	KindSelectItem:       "SELECT_ITEM",
	KindReplaceBlock:     "REPLACE_BLOCK",
	KindIncrementalBreak: "INCREMENTAL_BREAK",
	KindSetBlock:         "SET_BLOCK",
	KindGrow:             "GROW",
	KindTakeDamage:       "TAKE_DAMAGE",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KIND_%d", uint8(k))
}

// KindByName resolves the names used in JSON envelopes.
func KindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return KindUnknown, false
}

var (
	ErrUnknownKind = errors.New("unknown action kind")
	ErrEmpty       = errors.New("empty action payload")
)

// Tagged is anything with a wire tag: every entity change, block mutation and creature change.
type Tagged interface {
	Kind() Kind
}

type codec struct {
	decode func([]byte) (Tagged, error)
}

func entry[T Tagged]() codec {
	return codec{decode: func(b []byte) (Tagged, error) {
		var v T
		if err := msgpack.Unmarshal(b, &v); err != nil {
			return nil, err
		}
		return v, nil
	}}
}

var codecs = map[Kind]codec{
	KindMove:             entry[Move](),
	KindBreakBlock:       entry[BreakBlock](),
	KindPlaceBlock:       entry[PlaceBlock](),
	KindCraft:            entry[Craft](),
	KindHit:              entry[Hit](),
	KindEat:              entry[Eat](),
	KindCancel:           entry[Cancel](),
	KindStoreItems:       entry[StoreItems](),
	KindSelectItem:       entry[SelectItem](),
	KindReplaceBlock:     entry[ReplaceBlock](),
	KindIncrementalBreak: entry[IncrementalBreak](),
	KindSetBlock:         entry[SetBlock](),
	KindGrow:             entry[Grow](),
	KindTakeDamage:       entry[TakeDamage](),
}

// Encode writes the tag byte followed by the msgpack body.
func Encode(a Tagged) ([]byte, error) {
	k := a.Kind()
	if _, ok := codecs[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, k)
	}
	body, err := msgpack.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", k, err)
	}
	out := make([]byte, 0, len(body)+1)
	out = append(out, byte(k))
	return append(out, body...), nil
}

func Decode(b []byte) (Tagged, error) {
	if len(b) == 0 {
		return nil, ErrEmpty
	}
	k := Kind(b[0])
	c, ok := codecs[k]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, b[0])
	}
	v, err := c.decode(b[1:])
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	return v, nil
}

// DecodeEntityChange decodes b and requires an entity change, the only kind clients may send.
func DecodeEntityChange(b []byte) (EntityChange, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, err
	}
	c, ok := v.(EntityChange)
	if !ok {
		return nil, fmt.Errorf("%s is not an entity change", v.Kind())
	}
	return c, nil
}

// DecodeBlockMutation decodes b and requires a block mutation.
func DecodeBlockMutation(b []byte) (BlockMutation, error) {
	v, err := Decode(b)
	if err != nil {
		return nil, err
	}
	m, ok := v.(BlockMutation)
	if !ok {
		return nil, fmt.Errorf("%s is not a block mutation", v.Kind())
	}
	return m, nil
}
