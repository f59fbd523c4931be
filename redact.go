package mqrpc

import (
	"encoding/json"
	"reflect"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const hiddenBytes = "..bytes hidden.."

// Traffic directions used in envelope dumps.
const (
	trafficSent     = "sent"
	trafficReceived = "received"
)

var bytesType = reflect.TypeOf([]byte(nil))

// binaryParamNames returns the names of params holding raw byte buffers.
func binaryParamNames(params Params) []string {
	var names []string
	for _, nv := range params {
		if nv.Value == nil {
			continue
		}
		if reflect.TypeOf(nv.Value) == bytesType {
			names = append(names, nv.Name)
		}
	}
	return names
}

// redact returns a copy of params with the named values hidden.
func redact(params Params, hidden []string) Params {
	if len(hidden) == 0 || len(params) == 0 {
		return params
	}
	out := make(Params, len(params))
	copy(out, params)
	for i := range out {
		for _, name := range hidden {
			if out[i].Name == name {
				out[i].Value = hiddenBytes
			}
		}
	}
	return out
}

// logEnvelope dumps an envelope at debug level. Params named in hidden are
// replaced before encoding.
func logEnvelope(logger *zap.Logger, traffic string, envelope any, hidden []string) {
	ce := logger.Check(zapcore.DebugLevel, "envelope")
	if ce == nil {
		return
	}

	switch e := envelope.(type) {
	case *Request:
		redacted := *e
		redacted.Params = redact(e.Params, hidden)
		envelope = &redacted
	case *Response:
		redacted := *e
		redacted.ChangedParams = redact(e.ChangedParams, hidden)
		envelope = &redacted
	}

	data, err := json.Marshal(envelope)
	if err != nil {
		ce.Write(zap.String("traffic", traffic), zap.Error(err))
		return
	}
	ce.Write(zap.String("traffic", traffic), zap.ByteString("envelope", data))
}
