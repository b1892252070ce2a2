package s3storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectKey(t *testing.T) {
	t.Parallel()
	id := "0f8fad5b-d9cb-469f-a165-70867728950e"
	cases := []struct {
		name string
		want string
	}{
		{"Weekly Mailing 17.10.PDF", "documents/Weekly_Mailing_17_10-0f8fad5b.pdf"},
		{"../../etc/passwd", "documents/passwd-0f8fad5b"},
		{`C:\uploads\sheet.pdf`, "documents/sheet-0f8fad5b.pdf"},
		{"", "documents/document-0f8fad5b"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ObjectKey(tc.name, id), tc.name)
	}
}
