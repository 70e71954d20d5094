//go:build sonic

package modsdk

import (
	"github.com/bytedance/sonic"
)

var jsonMarshal = sonic.Marshal
var jsonUnmarshal = sonic.Unmarshal
