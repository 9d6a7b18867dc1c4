package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func roundtrip[T any](t *testing.T, in T) T {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, in))

	var out T
	require.NoError(t, ReadMessage(&buf, &out, 0))
	assert.Zero(t, buf.Len(), "frame not fully consumed")
	return out
}

func nestedValue() Value {
	return Array(
		Number(3),
		String(`say "hi"`),
		Bool(true),
		Null(),
		Array(),
		HashMap(map[string]Value{
			"pos":  Array(Number(1.5), Number(-2), Number(0)),
			"name": String("alpha"),
		}),
	)
}

func TestServerConfigRoundtrip(t *testing.T) {
	cfg := ServerConfig{Binary: "arma3server_x64", Branch: "profiling", BranchPassword: "CautionSpecialProfilingAndTestingBranchArma3"}
	assert.Equal(t, cfg, roundtrip(t, cfg))
}

func TestServerConfigDefaults(t *testing.T) {
	assert.Equal(t, DefaultServerConfig(), ServerConfig{}.WithDefaults())

	custom := ServerConfig{Binary: "arma3server", Branch: "contact"}
	assert.Equal(t, custom, custom.WithDefaults())
}

func TestRequestRoundtrip(t *testing.T) {
	t.Run("execute", func(t *testing.T) {
		req := NewExecuteRequest("private _a = 1; private _b = 2; _a + _b")
		assert.Equal(t, req, roundtrip(t, req))
	})

	t.Run("compare", func(t *testing.T) {
		req := NewCompareRequest(
			CompareRequest{ID: 0, Content: []byte("private _a = 1; private _b = 2; _a + _b")},
			CompareRequest{ID: 1, SQFC: true, Content: []byte{0x00, 0xff, 0x10}},
		)
		assert.Equal(t, req, roundtrip(t, req))
	})
}

func TestResponseRoundtrip(t *testing.T) {
	cases := map[string]Response{
		"error":         NewErrorResponse("failed to build: disk full"),
		"execute ok":    NewExecuteResponse(ExecuteResult{Time: 0.0012, Iter: 10000, Ret: nestedValue()}),
		"execute error": NewExecuteErrorResponse("script error"),
		"compare ok": NewCompareResponse([]CompareResult{
			{ID: 0, Time: 0.0021, Iter: 10000, Ret: Number(3)},
			{ID: 1, Time: 0.0008, Iter: 10000, Ret: nestedValue()},
		}),
		"compare error": NewCompareErrorResponse("benchmark timed out"),
	}

	for name, resp := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, resp, roundtrip(t, resp))
		})
	}
}

func TestResponseFailed(t *testing.T) {
	assert.True(t, NewErrorResponse("x").Failed())
	assert.True(t, NewCompareErrorResponse("x").Failed())
	assert.False(t, NewExecuteResponse(ExecuteResult{}).Failed())
	assert.False(t, NewCompareResponse(nil).Failed())

	t.Run("empty error message", func(t *testing.T) {
		for _, resp := range []Response{NewExecuteErrorResponse(""), NewCompareErrorResponse("")} {
			assert.True(t, resp.Failed(), "%s", resp.Kind)
			assert.True(t, roundtrip(t, resp).Failed(), "%s after roundtrip", resp.Kind)
		}
	})
}

func TestCompareRequestSerdeForms(t *testing.T) {
	want := NewCompareRequest(CompareRequest{ID: 1, Content: []byte("xy")})

	tests := []struct {
		name    string
		payload []byte
	}{
		// {"Compare": [[1, false, [0x78, 0x79]]]}
		{"positional with integer content", []byte{
			0x81, 0xa7, 'C', 'o', 'm', 'p', 'a', 'r', 'e',
			0x91, 0x93, 0x01, 0xc2, 0x92, 0x78, 0x79,
		}},
		// {"Compare": [{"id": 1, "sqfc": false, "content": bin "xy"}]}
		{"named with bin content", []byte{
			0x81, 0xa7, 'C', 'o', 'm', 'p', 'a', 'r', 'e',
			0x91, 0x83,
			0xa2, 'i', 'd', 0x01,
			0xa4, 's', 'q', 'f', 'c', 0xc2,
			0xa7, 'c', 'o', 'n', 't', 'e', 'n', 't', 0xc4, 0x02, 0x78, 0x79,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var frame bytes.Buffer
			var prefix [LengthPrefixSize]byte
			binary.LittleEndian.PutUint64(prefix[:], uint64(len(tt.payload)))
			frame.Write(prefix[:])
			frame.Write(tt.payload)

			var got Request
			require.NoError(t, ReadMessage(&frame, &got, 0))
			assert.Equal(t, want, got)
		})
	}
}

func TestCompareRequestContentEncodedAsIntegers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewCompareRequest(CompareRequest{ID: 1, Content: []byte("xy")})))

	payload := buf.Bytes()[LengthPrefixSize:]
	assert.True(t, bytes.HasSuffix(payload, []byte{0xa7, 'c', 'o', 'n', 't', 'e', 'n', 't', 0x92, 0x78, 0x79}),
		"content must be an array of integers, got % x", payload)
}

func TestRequestValidate(t *testing.T) {
	assert.NoError(t, NewExecuteRequest("").Validate())
	assert.NoError(t, NewCompareRequest(CompareRequest{ID: 1}, CompareRequest{ID: 2}).Validate())
	assert.Error(t, NewCompareRequest().Validate())
	assert.Error(t, NewCompareRequest(CompareRequest{ID: 1}, CompareRequest{ID: 1}).Validate())
	assert.Error(t, Request{Kind: "Destroy"}.Validate())
}

func TestFrameLayout(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewExecuteRequest("1 + 2")))

	frame := buf.Bytes()
	require.Greater(t, len(frame), LengthPrefixSize)
	n := binary.LittleEndian.Uint64(frame[:LengthPrefixSize])
	assert.Equal(t, uint64(len(frame)-LengthPrefixSize), n)
}

func TestReadMessageTruncated(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, NewExecuteRequest("1 + 2")))
	truncated := buf.Bytes()[:buf.Len()-2]

	var req Request
	err := ReadMessage(bytes.NewReader(truncated), &req, 0)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)

	err = ReadMessage(bytes.NewReader(nil), &req, 0)
	assert.ErrorIs(t, err, io.EOF)
}

func TestReadMessageTooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.LittleEndian.PutUint64(prefix[:], 1<<40)

	var req Request
	err := ReadMessage(bytes.NewReader(prefix[:]), &req, 1024)
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}

func TestReadMessageContextCancel(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		var req Request
		errCh <- ReadMessageContext(ctx, server, nil, &req, 0)
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("read did not return after cancel")
	}
}

func TestHandshakeHelpers(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf))
	assert.Equal(t, HeaderIDLen, buf.Len())
	require.NoError(t, ReadHeader(&buf))

	err := ReadHeader(bytes.NewReader([]byte("SENDINGBADHEADER")))
	assert.ErrorIs(t, err, ErrBadHeader)

	assert.NoError(t, ReadAck(bytes.NewReader([]byte{AckReady})))
	assert.ErrorIs(t, ReadAck(bytes.NewReader([]byte{0})), ErrBadAck)
}

func TestValueJSON(t *testing.T) {
	v := nestedValue()
	data, err := json.Marshal(v)
	require.NoError(t, err)

	var decoded Value
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, v, decoded)
}

func TestValueFromShimJSON(t *testing.T) {
	var res ExecuteResult
	require.NoError(t, json.Unmarshal([]byte(`{"time":0.0004,"iter":10000,"ret":[1,"two",false,null]}`), &res))

	assert.Equal(t, 0.0004, res.Time)
	assert.Equal(t, uint32(10000), res.Iter)
	assert.Equal(t, Array(Number(1), String("two"), Bool(false), Null()), res.Ret)
}

func TestValueString(t *testing.T) {
	assert.Equal(t, "3", Number(3).String())
	assert.Equal(t, "null", Null().String())
	assert.Equal(t, `"say ""hi"""`, String(`say "hi"`).String())
	assert.Equal(t, `[1,true,[]]`, Array(Number(1), Bool(true), Array()).String())
	assert.Equal(t, `[["a",1],["b","x"]]`, HashMap(map[string]Value{"b": String("x"), "a": Number(1)}).String())
}

func TestValueAccessors(t *testing.T) {
	n, ok := Number(2.5).AsNumber()
	assert.True(t, ok)
	assert.Equal(t, 2.5, n)

	_, ok = String("x").AsNumber()
	assert.False(t, ok)

	assert.True(t, Value{}.IsNull())
	assert.Equal(t, KindHashMap, HashMap(nil).Kind())
	assert.Equal(t, "array", KindArray.String())
}
