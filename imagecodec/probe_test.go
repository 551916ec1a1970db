package imagecodec

import (
	"errors"
	"testing"
)

func TestParseProbe(t *testing.T) {
	raw := `{"streams":[
		{"codec_type":"audio","codec_name":"aac"},
		{"codec_type":"video","codec_name":"png","width":1804,"height":1004}
	]}`
	d, err := parseProbe("logo.png", []byte(raw))
	if err != nil {
		t.Fatalf("parseProbe: %v", err)
	}
	if d.Width != 1804 || d.Height != 1004 || d.Codec != "png" {
		t.Errorf("parseProbe = %+v", d)
	}
}

func TestParseProbeNoStream(t *testing.T) {
	for _, raw := range []string{`{"streams":[]}`, `{}`, `not json`} {
		if _, err := parseProbe("x.png", []byte(raw)); !errors.Is(err, ErrCodec) {
			t.Errorf("parseProbe(%s) error = %v, want ErrCodec", raw, err)
		}
	}
}
