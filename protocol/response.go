package protocol

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

type ResponseKind string

const (
	ResponseError   ResponseKind = "Error"
	ResponseExecute ResponseKind = "Execute"
	ResponseCompare ResponseKind = "Compare"
)

const (
	resultOk  = "Ok"
	resultErr = "Err"
)

// ExecuteResult is the outcome of an Execute request. Time is the mean
// execution time in milliseconds over Iter iterations.
type ExecuteResult struct {
	Time float64 `msgpack:"time" json:"time"`
	Iter uint32  `msgpack:"iter" json:"iter"`
	Ret  Value   `msgpack:"ret" json:"ret"`
}

// CompareResult is the outcome of one item of a Compare request.
type CompareResult struct {
	ID   uint16  `msgpack:"id" json:"id"`
	Time float64 `msgpack:"time" json:"time"`
	Iter uint32  `msgpack:"iter" json:"iter"`
	Ret  Value   `msgpack:"ret" json:"ret"`
}

// Response is the server's single reply to a Request.
//
// Kind Error carries Err and means the job never produced a result.
// Kinds Execute and Compare carry either a result or, when Err is set, an
// in-band failure of that request type.
type Response struct {
	Kind    ResponseKind
	Err     string
	Execute *ExecuteResult
	Compare []CompareResult
}

func NewErrorResponse(msg string) Response {
	return Response{Kind: ResponseError, Err: msg}
}

func NewExecuteResponse(res ExecuteResult) Response {
	return Response{Kind: ResponseExecute, Execute: &res}
}

func NewExecuteErrorResponse(msg string) Response {
	return Response{Kind: ResponseExecute, Err: msg}
}

func NewCompareResponse(res []CompareResult) Response {
	if res == nil {
		res = []CompareResult{}
	}
	return Response{Kind: ResponseCompare, Compare: res}
}

func NewCompareErrorResponse(msg string) Response {
	return Response{Kind: ResponseCompare, Err: msg}
}

// Failed reports whether the response carries an error of any kind. A
// result variant without a result counts as failed, even when Err is empty.
func (r Response) Failed() bool {
	switch r.Kind {
	case ResponseExecute:
		return r.Err != "" || r.Execute == nil
	case ResponseCompare:
		return r.Err != "" || r.Compare == nil
	default:
		return true
	}
}

func (r Response) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(string(r.Kind)); err != nil {
		return err
	}

	switch r.Kind {
	case ResponseError:
		return enc.EncodeString(r.Err)
	case ResponseExecute:
		if r.Err != "" || r.Execute == nil {
			return encodeResultErr(enc, r.Err)
		}
		return encodeResultOk(enc, r.Execute)
	case ResponseCompare:
		if r.Err != "" || r.Compare == nil {
			return encodeResultErr(enc, r.Err)
		}
		return encodeResultOk(enc, r.Compare)
	default:
		return fmt.Errorf("encode response: unknown kind %q", r.Kind)
	}
}

func encodeResultOk(enc *msgpack.Encoder, v any) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(resultOk); err != nil {
		return err
	}
	return enc.Encode(v)
}

func encodeResultErr(enc *msgpack.Encoder, msg string) error {
	if err := enc.EncodeMapLen(1); err != nil {
		return err
	}
	if err := enc.EncodeString(resultErr); err != nil {
		return err
	}
	return enc.EncodeString(msg)
}

func (r *Response) DecodeMsgpack(dec *msgpack.Decoder) error {
	tag, err := decodeVariantTag(dec)
	if err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	switch ResponseKind(tag) {
	case ResponseError:
		msg, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("decode error response: %w", err)
		}
		*r = NewErrorResponse(msg)
	case ResponseExecute:
		var res ExecuteResult
		msg, ok, err := decodeResult(dec, &res)
		if err != nil {
			return fmt.Errorf("decode execute response: %w", err)
		}
		if ok {
			*r = NewExecuteResponse(res)
		} else {
			*r = NewExecuteErrorResponse(msg)
		}
	case ResponseCompare:
		res := []CompareResult{}
		msg, ok, err := decodeResult(dec, &res)
		if err != nil {
			return fmt.Errorf("decode compare response: %w", err)
		}
		if ok {
			*r = NewCompareResponse(res)
		} else {
			*r = NewCompareErrorResponse(msg)
		}
	default:
		return fmt.Errorf("decode response: unknown variant %q", tag)
	}
	return nil
}

// decodeResult decodes an {"Ok": v} or {"Err": msg} map. ok is true when
// the Ok branch was decoded into v.
func decodeResult(dec *msgpack.Decoder, v any) (msg string, ok bool, err error) {
	tag, err := decodeVariantTag(dec)
	if err != nil {
		return "", false, err
	}
	switch tag {
	case resultOk:
		return "", true, dec.Decode(v)
	case resultErr:
		msg, err = dec.DecodeString()
		return msg, false, err
	default:
		return "", false, fmt.Errorf("unknown result variant %q", tag)
	}
}
