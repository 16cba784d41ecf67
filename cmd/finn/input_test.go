package main

import (
	"reflect"
	"strings"
	"testing"

	"github.com/danderson/finn"
	"github.com/google/go-cmp/cmp"
)

func TestDecodeParams(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want any
	}{
		{
			name: "empty",
			in:   "",
			want: &finn.Nv0080FbGetCapsParams{},
		},
		{
			name: "buffer",
			in: `
capsTblSize: 3
capsTbl: [1, 2, 0x03]
`,
			want: &finn.Nv0080FbGetCapsParams{
				CapsTblSize: 3,
				CapsTbl:     []byte{1, 2, 3},
			},
		},
		{
			name: "string buffer",
			in: `
capstblsize: 2
capstbl: hi
`,
			want: &finn.Nv0080FbGetCapsParams{
				CapsTblSize: 2,
				CapsTbl:     []byte("hi"),
			},
		},
		{
			name: "arrays and handles",
			in: `
fifoStartChannelListCount: 1
channelHandle: [0xcafe0001, 2]
fifoStartChannelList:
  - hChannel: 0xcafe0001
`,
			want: &finn.Nv0080FifoStartSelectedChannelsParams{
				FifoStartChannelListCount: 1,
				ChannelHandle:             [8]finn.Handle{0xcafe0001, 2},
				FifoStartChannelList: []finn.Nv0080FifoChannel{
					{HChannel: 0xcafe0001},
				},
			},
		},
		{
			name: "union by name",
			in: `
transType: i2c_buffer_rw
deviceAddress: 0x50
transData:
  messageLength: 2
  write: true
  message: [0xaa, 0xbb]
`,
			want: &finn.Nv402cI2CTransactionParams{
				TransType:     finn.I2CTransactionI2CBufferRW,
				DeviceAddress: 0x50,
				TransData: finn.I2CBufferRW{
					MessageLength: 2,
					Write:         true,
					Message:       []byte{0xaa, 0xbb},
				},
			},
		},
		{
			name: "union by value",
			in: `
transType: 5
transData:
  message: 0x1234
`,
			want: &finn.Nv402cI2CTransactionParams{
				TransType: finn.I2CTransactionSmbusWordRW,
				TransData: finn.I2CSmbusWordRW{Message: 0x1234},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := newLike(tc.want)
			if err := decodeParams([]byte(tc.in), got); err != nil {
				t.Fatalf("decodeParams failed: %v", err)
			}
			if diff := cmp.Diff(got, tc.want); diff != "" {
				t.Fatalf("wrong result (-got+want):\n%s", diff)
			}
		})
	}
}

func TestDecodeParamsErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		wantErr string
	}{
		{"unknown field", "bogus: 1", "no field"},
		{"not a mapping", "[1, 2]", "expected a mapping"},
		{"wrong variant field", "transType: SMBUS_QUICK_RW\ntransData: {message: 1}", "no field"},
		{"unknown enum", "transType: NOPE", "unknown I2CTransactionType"},
		{"bad scalar", "flags: lots", "line 1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := decodeParams([]byte(tc.in), &finn.Nv402cI2CTransactionParams{})
			if err == nil {
				t.Fatal("decodeParams succeeded, want error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("got error %q, want it to mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	for _, in := range []string{
		"NV0080_CTRL_CMD_FB_GET_CAPS",
		"nv0080_fb_get_caps",
		"0x00801301",
	} {
		m, err := parseCommand(in)
		if err != nil {
			t.Fatalf("parseCommand(%q) failed: %v", in, err)
		}
		if got, want := m.Command(), uint32(finn.CmdNv0080FbGetCaps); got != want {
			t.Errorf("parseCommand(%q) = 0x%08x, want 0x%08x", in, got, want)
		}
	}

	for _, in := range []string{"0xffffffff", "0xnope", "NV_BOGUS"} {
		if _, err := parseCommand(in); err == nil {
			t.Errorf("parseCommand(%q) succeeded, want error", in)
		}
	}
}

func newLike(v any) any {
	return reflect.New(reflect.TypeOf(v).Elem()).Interface()
}
