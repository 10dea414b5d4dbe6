package cache

import (
	"bytes"
	"testing"
)

func TestCodecByName(t *testing.T) {
	for _, name := range []string{CodecJSON, CodecMsgpack} {
		c, ok := codecByName(name)
		if !ok {
			t.Fatalf("codecByName(%q) not found", name)
		}
		if c.Name() != name {
			t.Errorf("codec name = %q, want %q", c.Name(), name)
		}
	}
	if _, ok := codecByName("protobuf"); ok {
		t.Error("expected unknown codec to be rejected")
	}
}

func TestCodecRoundTrip(t *testing.T) {
	type payload struct {
		ID   string   `json:"id" msgpack:"id"`
		Tags []string `json:"tags" msgpack:"tags"`
	}
	in := payload{ID: "1", Tags: []string{"a", "b"}}

	for _, name := range []string{CodecJSON, CodecMsgpack} {
		t.Run(name, func(t *testing.T) {
			c, _ := codecByName(name)
			data, err := c.Marshal(in)
			if err != nil {
				t.Fatalf("Marshal failed: %v", err)
			}
			var out payload
			if err := c.Unmarshal(data, &out); err != nil {
				t.Fatalf("Unmarshal failed: %v", err)
			}
			if out.ID != in.ID || len(out.Tags) != len(in.Tags) {
				t.Errorf("round trip produced %+v, want %+v", out, in)
			}
		})
	}
}

func TestCompressPayload(t *testing.T) {
	in := bytes.Repeat([]byte("entity cache payload "), 500)

	compressed, err := compressPayload(in)
	if err != nil {
		t.Fatalf("compress failed: %v", err)
	}
	if len(compressed) >= len(in) {
		t.Errorf("compressed size %d not smaller than input %d", len(compressed), len(in))
	}

	out, err := decompressPayload(compressed)
	if err != nil {
		t.Fatalf("decompress failed: %v", err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip altered payload")
	}
}

func TestDecompressRejectsGarbage(t *testing.T) {
	if _, err := decompressPayload([]byte("not gzip")); err == nil {
		t.Error("expected error for invalid gzip data")
	}
}
