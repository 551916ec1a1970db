package imagecodec

import (
	"encoding/json"
	"fmt"

	"github.com/jmespath/go-jmespath"
	ffmpeg "github.com/u2takey/ffmpeg-go"

	sttypes "sitetools/type"
)

// 取第一个视频流（静态图片在 ffprobe 中也是 video 流）
const probeQuery = "streams[?codec_type=='video'] | [0].{width: width, height: height, codec: codec_name}"

// Probe 用 ffprobe 读取图片尺寸与编码
func Probe(path string) (sttypes.Dimensions, error) {
	probeStr, err := ffmpeg.Probe(path)
	if err != nil {
		return sttypes.Dimensions{}, &CodecError{Op: "probe", Path: path, Err: err}
	}
	return parseProbe(path, []byte(probeStr))
}

func parseProbe(path string, raw []byte) (sttypes.Dimensions, error) {
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return sttypes.Dimensions{}, &CodecError{Op: "probe", Path: path, Err: fmt.Errorf("json unmarshal error: %w", err)}
	}

	found, err := jmespath.Search(probeQuery, doc)
	if err != nil {
		return sttypes.Dimensions{}, &CodecError{Op: "probe", Path: path, Err: err}
	}
	m, ok := found.(map[string]interface{})
	if !ok {
		return sttypes.Dimensions{}, &CodecError{Op: "probe", Path: path, Err: fmt.Errorf("no image stream found")}
	}

	var d sttypes.Dimensions
	if v, ok := m["width"].(float64); ok {
		d.Width = int(v)
	}
	if v, ok := m["height"].(float64); ok {
		d.Height = int(v)
	}
	if v, ok := m["codec"].(string); ok {
		d.Codec = v
	}
	return d, nil
}
