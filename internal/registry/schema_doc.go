package registry

import (
	"bytes"
	"encoding/json"
	"io"
)

// docToReader serializes a schema document map back to JSON so it can be
// fed to jsonschema.Compiler.AddResource, which wants a reader rather than
// a decoded value. Panics only on a programmer error (an unmarshalable
// document), since schema docs are always produced by our own YAML loader.
func docToReader(doc map[string]any) io.Reader {
	b, err := json.Marshal(doc)
	if err != nil {
		panic("registry: schema document is not JSON-serializable: " + err.Error())
	}
	return bytes.NewReader(b)
}
