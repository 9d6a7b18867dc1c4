package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

type RequestKind string

const (
	RequestExecute RequestKind = "Execute"
	RequestCompare RequestKind = "Compare"
)

// Request is a single benchmark job submitted by a client. Exactly one of
// Script (Execute) or Items (Compare) is meaningful, selected by Kind.
type Request struct {
	Kind   RequestKind
	Script string
	Items  []CompareRequest
}

// CompareRequest is one script in a Compare request. ID must be unique
// within the request and is echoed back on the matching CompareResult.
type CompareRequest struct {
	ID      uint16 `msgpack:"id" json:"id"`
	SQFC    bool   `msgpack:"sqfc" json:"sqfc"`
	Content []byte `msgpack:"content" json:"content"`
}

// EncodeMsgpack writes the item as a map with Content as an array of
// integers, the form serde-based peers expect for a byte vector.
func (c CompareRequest) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(3); err != nil {
		return err
	}
	if err := enc.EncodeString("id"); err != nil {
		return err
	}
	if err := enc.EncodeUint(uint64(c.ID)); err != nil {
		return err
	}
	if err := enc.EncodeString("sqfc"); err != nil {
		return err
	}
	if err := enc.EncodeBool(c.SQFC); err != nil {
		return err
	}
	if err := enc.EncodeString("content"); err != nil {
		return err
	}
	if err := enc.EncodeArrayLen(len(c.Content)); err != nil {
		return err
	}
	for _, b := range c.Content {
		if err := enc.EncodeUint(uint64(b)); err != nil {
			return err
		}
	}
	return nil
}

// DecodeMsgpack accepts the item as a map or as a positional array
// (id, sqfc, content), with Content as bin, str or an array of integers.
func (c *CompareRequest) DecodeMsgpack(dec *msgpack.Decoder) error {
	code, err := dec.PeekCode()
	if err != nil {
		return err
	}

	var out CompareRequest
	switch {
	case isArrayCode(code):
		n, err := dec.DecodeArrayLen()
		if err != nil {
			return err
		}
		if n != 3 {
			return fmt.Errorf("compare item has %d fields, want 3", n)
		}
		if out.ID, err = dec.DecodeUint16(); err != nil {
			return fmt.Errorf("compare item id: %w", err)
		}
		if out.SQFC, err = dec.DecodeBool(); err != nil {
			return fmt.Errorf("compare item sqfc: %w", err)
		}
		if out.Content, err = decodeByteSlice(dec); err != nil {
			return fmt.Errorf("compare item content: %w", err)
		}
	case msgpcode.IsFixedMap(code) || code == msgpcode.Map16 || code == msgpcode.Map32:
		n, err := dec.DecodeMapLen()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return fmt.Errorf("compare item key: %w", err)
			}
			switch key {
			case "id":
				out.ID, err = dec.DecodeUint16()
			case "sqfc":
				out.SQFC, err = dec.DecodeBool()
			case "content":
				out.Content, err = decodeByteSlice(dec)
			default:
				err = dec.Skip()
			}
			if err != nil {
				return fmt.Errorf("compare item %s: %w", key, err)
			}
		}
	default:
		return fmt.Errorf("compare item: unexpected code 0x%02x", code)
	}

	*c = out
	return nil
}

func isArrayCode(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

// decodeByteSlice reads bin, str, nil or an array of uint8. Empty input
// decodes to nil.
func decodeByteSlice(dec *msgpack.Decoder) ([]byte, error) {
	code, err := dec.PeekCode()
	if err != nil {
		return nil, err
	}

	switch {
	case code == msgpcode.Nil:
		return nil, dec.DecodeNil()
	case isArrayCode(code):
		n, err := dec.DecodeArrayLen()
		if err != nil || n <= 0 {
			return nil, err
		}
		b := make([]byte, n)
		for i := range b {
			if b[i], err = dec.DecodeUint8(); err != nil {
				return nil, err
			}
		}
		return b, nil
	default:
		b, err := dec.DecodeBytes()
		if err != nil || len(b) == 0 {
			return nil, err
		}
		return b, nil
	}
}

func NewExecuteRequest(script string) Request {
	return Request{Kind: RequestExecute, Script: script}
}

func NewCompareRequest(items ...CompareRequest) Request {
	return Request{Kind: RequestCompare, Items: items}
}

// Validate rejects unknown kinds, empty compare lists and duplicate ids.
func (r Request) Validate() error {
	switch r.Kind {
	case RequestExecute:
		return nil
	case RequestCompare:
		if len(r.Items) == 0 {
			return fmt.Errorf("compare request has no items")
		}
		seen := make(map[uint16]struct{}, len(r.Items))
		for _, it := range r.Items {
			if _, dup := seen[it.ID]; dup {
				return fmt.Errorf("duplicate compare id %d", it.ID)
			}
			seen[it.ID] = struct{}{}
		}
		return nil
	default:
		return fmt.Errorf("unknown request kind %q", r.Kind)
	}
}

// EncodeMsgpack writes the request as a single-entry map keyed by its kind.
func (r Request) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	switch r.Kind {
	case RequestExecute:
		if err := enc.EncodeString(string(RequestExecute)); err != nil {
			return err
		}
		return enc.EncodeString(r.Script)
	case RequestCompare:
		if err := enc.EncodeString(string(RequestCompare)); err != nil {
			return err
		}
		items := r.Items
		if items == nil {
			items = []CompareRequest{}
		}
		return enc.Encode(items)
	default:
		return fmt.Errorf("encode request: unknown kind %q", r.Kind)
	}
}

func (r *Request) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, err := decodeVariantTag(dec)
	if err != nil {
		return fmt.Errorf("decode request: %w", err)
	}

	switch RequestKind(tag) {
	case RequestExecute:
		script, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("decode execute request: %w", err)
		}
		*r = NewExecuteRequest(script)
	case RequestCompare:
		items := []CompareRequest{}
		if err := dec.Decode(&items); err != nil {
			return fmt.Errorf("decode compare request: %w", err)
		}
		*r = NewCompareRequest(items...)
	default:
		return fmt.Errorf("decode request: unknown variant %q", tag)
	}
	return nil
}

// decodeVariantTag reads the header of a single-entry variant map and
// returns its key.
func decodeVariantTag(dec *msgpack.Decoder) (string, error) {
	n, err := dec.DecodeMapLen()
	if err != nil {
		return "", err
	}
	if n != 1 {
		return "", fmt.Errorf("variant map has %d entries, want 1", n)
	}
	return dec.DecodeString()
}
