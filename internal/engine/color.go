package engine

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// rgba is a normalized color: r, g, b in 0..1, a in 0..1.
type rgba struct {
	r, g, b, a float32
}

// parseColorObject decodes a {"r":255,"g":0,"b":0,"a":1} JSON object.
// Channels are 0-255 bytes, alpha is already normalized. Missing or
// malformed fields fall back to opaque red, matching editor defaults.
func parseColorObject(raw json.RawMessage) rgba {
	var obj struct {
		R *float64 `json:"r"`
		G *float64 `json:"g"`
		B *float64 `json:"b"`
		A *float64 `json:"a"`
	}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &obj)
	}
	pick := func(v *float64, def float64) float32 {
		if v == nil {
			return float32(def)
		}
		return float32(*v)
	}
	return rgba{
		r: pick(obj.R, 255) / 255,
		g: pick(obj.G, 0) / 255,
		b: pick(obj.B, 0) / 255,
		a: pick(obj.A, 1),
	}
}

// parseHexColor decodes "#rrggbb" or "#rrggbbaa". Anything shorter
// decodes to opaque black.
func parseHexColor(hex string) rgba {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) < 6 {
		return rgba{a: 1}
	}
	byteAt := func(i int) float32 {
		v, err := strconv.ParseUint(hex[i:i+2], 16, 8)
		if err != nil {
			return 0
		}
		return float32(v) / 255
	}
	c := rgba{r: byteAt(0), g: byteAt(2), b: byteAt(4), a: 1}
	if len(hex) >= 8 {
		c.a = byteAt(6)
	}
	return c
}

// colorPreviewJSON renders the host-facing preview string for a color.
func colorPreviewJSON(c rgba) string {
	return fmt.Sprintf(`{"r":%d,"g":%d,"b":%d,"a":%g}`,
		roundByte(c.r), roundByte(c.g), roundByte(c.b), c.a)
}

func roundByte(v float32) int {
	b := int(v*255 + 0.5)
	if b < 0 {
		return 0
	}
	if b > 255 {
		return 255
	}
	return b
}
