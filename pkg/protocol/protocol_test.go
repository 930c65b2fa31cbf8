package protocol_test

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/NicolasHaas/campus/pkg/protocol"
	pb "github.com/NicolasHaas/campus/pkg/protocol/pb"
)

func writeRaw(t *testing.T, buf *bytes.Buffer, data []byte) {
	t.Helper()
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	buf.Write(lenBuf[:])
	buf.Write(data)
}

func TestMessageRoundTrip(t *testing.T) {
	req, err := protocol.NewRequest(protocol.OpLogin, pb.LoginRequest{ID: "s001", Password: "secret"})
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := protocol.NewResponse(protocol.OpLoginSuccess, protocol.StatusSuccess, map[string]any{"user_id": 42}, "")
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	fail := protocol.Failure(protocol.OpCreateThread, protocol.StatusUnauthorized, "")

	var buf bytes.Buffer
	for _, m := range []*protocol.Message{req, resp, fail} {
		if err := protocol.WriteMessage(&buf, m); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	for _, want := range []*protocol.Message{req, resp, fail} {
		got, err := protocol.ReadMessage(&buf)
		if err != nil {
			t.Fatalf("ReadMessage: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
	if _, err := protocol.ReadMessage(&buf); !errors.Is(err, io.EOF) {
		t.Errorf("ReadMessage on empty stream = %v, want EOF", err)
	}
}

func TestFailureAlwaysHasText(t *testing.T) {
	m := protocol.Failure(protocol.OpGetBook, protocol.StatusNotFound, "")
	if m.Text != "NOT_FOUND" {
		t.Errorf("Failure text = %q, want NOT_FOUND", m.Text)
	}
	resp, err := protocol.NewResponse(protocol.OpGetBook, protocol.StatusForbidden, nil, "")
	if err != nil {
		t.Fatalf("NewResponse: %v", err)
	}
	if resp.Text != "FORBIDDEN" {
		t.Errorf("NewResponse text = %q, want FORBIDDEN", resp.Text)
	}
}

func TestMalformedFrameKeepsStreamAligned(t *testing.T) {
	var buf bytes.Buffer
	writeRaw(t, &buf, []byte(`{"op": 12`))
	writeRaw(t, &buf, []byte(`{"payload": {}}`))
	if err := protocol.WriteMessage(&buf, &protocol.Message{Opcode: protocol.OpHeartbeat}); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	for i := 0; i < 2; i++ {
		_, err := protocol.ReadMessage(&buf)
		var derr *protocol.DecodeError
		if !errors.As(err, &derr) {
			t.Fatalf("frame %d: err = %v, want *DecodeError", i, err)
		}
	}
	msg, err := protocol.ReadMessage(&buf)
	if err != nil {
		t.Fatalf("ReadMessage after malformed frames: %v", err)
	}
	if msg.Opcode != protocol.OpHeartbeat {
		t.Errorf("opcode = %s, want HEARTBEAT", msg.Opcode)
	}
}

func TestFrameTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], protocol.MaxMessageSize+1)
	buf.Write(lenBuf[:])
	if _, err := protocol.ReadMessage(&buf); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("ReadMessage = %v, want ErrFrameTooLarge", err)
	}

	huge := &protocol.Message{Opcode: protocol.OpCreateThread, Payload: json.RawMessage(`"` + string(bytes.Repeat([]byte("a"), protocol.MaxMessageSize)) + `"`)}
	if err := protocol.WriteMessage(io.Discard, huge); !errors.Is(err, protocol.ErrFrameTooLarge) {
		t.Errorf("WriteMessage = %v, want ErrFrameTooLarge", err)
	}
}

func TestDecodePayload(t *testing.T) {
	tests := map[string]struct {
		payload string
		wantErr bool
		want    pb.LoginRequest
	}{
		"valid":           {payload: `{"id":"s001","password":"secret"}`, want: pb.LoginRequest{ID: "s001", Password: "secret"}},
		"absent":          {payload: ``, want: pb.LoginRequest{}},
		"null":            {payload: `null`, want: pb.LoginRequest{}},
		"unknown field":   {payload: `{"id":"s001","pw":"x"}`, wantErr: true},
		"wrong type":      {payload: `{"id":42}`, wantErr: true},
		"list for record": {payload: `[1,2]`, wantErr: true},
		"trailing data":   {payload: `{"id":"a"} {}`, wantErr: true},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			msg := &protocol.Message{Opcode: protocol.OpLogin, Payload: json.RawMessage(tc.payload)}
			var got pb.LoginRequest
			err := msg.Decode(&got)
			if tc.wantErr {
				var derr *protocol.DecodeError
				if !errors.As(err, &derr) {
					t.Fatalf("Decode = %v, want *DecodeError", err)
				}
				if derr.Opcode != protocol.OpLogin {
					t.Errorf("DecodeError.Opcode = %s", derr.Opcode)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Decode mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestOpcodeKinds(t *testing.T) {
	for _, op := range protocol.RequestOpcodes() {
		if !op.IsRequest() {
			t.Errorf("%s listed as request but Kind=%d", op, op.Kind())
		}
	}
	for _, op := range []protocol.Opcode{protocol.OpAnnouncement, protocol.OpResourceDeleted, protocol.OpForcedLogout} {
		if !op.IsPush() {
			t.Errorf("%s should be a push opcode", op)
		}
	}
	if protocol.Opcode("TELEPORT").Kind() != protocol.KindUnknown {
		t.Errorf("unknown opcode classified")
	}
	if protocol.OpLoginSuccess.IsRequest() {
		t.Errorf("LOGIN_SUCCESS must not be a request")
	}
}
