//go:build !sonic

package modsdk

import (
	"github.com/goccy/go-json"
)

var jsonMarshal = json.Marshal
var jsonUnmarshal = json.Unmarshal
