package transport

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperation_Descriptors(t *testing.T) {
	seen := make(map[string]bool)
	for op := OpOpen; op <= OpMsConcat; op++ {
		d, ok := op.Descriptor()
		if !assert.True(t, ok, "operation %d has no descriptor", int(op)) {
			continue
		}
		assert.False(t, seen[d.Name], "duplicate name %s", d.Name)
		seen[d.Name] = true
		assert.Equal(t, d.Name, op.String())
		assert.NotEmpty(t, d.Method)
		assert.Contains(t, []string{NamespaceWebHDFS, NamespaceExtension}, d.Namespace)
	}

	_, ok := Operation(0).Descriptor()
	assert.False(t, ok)
	assert.Equal(t, "UNKNOWN", Operation(0).String())
}

func TestOperation_WireShape(t *testing.T) {
	tests := []struct {
		op        Operation
		method    string
		reqBody   bool
		respBody  bool
		namespace string
	}{
		{OpOpen, http.MethodGet, false, true, NamespaceWebHDFS},
		{OpCreate, http.MethodPut, true, false, NamespaceWebHDFS},
		{OpAppend, http.MethodPost, true, false, NamespaceWebHDFS},
		{OpConcurrentAppend, http.MethodPost, true, false, NamespaceExtension},
		{OpDelete, http.MethodDelete, false, true, NamespaceWebHDFS},
		{OpRename, http.MethodPut, false, true, NamespaceWebHDFS},
		{OpListStatus, http.MethodGet, false, true, NamespaceWebHDFS},
		{OpGetFileStatus, http.MethodGet, false, true, NamespaceWebHDFS},
		{OpSetExpiry, http.MethodPut, false, false, NamespaceExtension},
	}

	for _, tt := range tests {
		t.Run(tt.op.String(), func(t *testing.T) {
			d, ok := tt.op.Descriptor()
			assert.True(t, ok)
			assert.Equal(t, tt.method, d.Method)
			assert.Equal(t, tt.reqBody, d.RequiresBody)
			assert.Equal(t, tt.respBody, d.ReturnsBody)
			assert.Equal(t, tt.namespace, d.Namespace)
		})
	}
}
