package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParentRefFromIDs(t *testing.T) {
	tests := []struct {
		name     string
		comment  *string
		folder   *string
		software *string
		want     ParentRef
		wantErr  bool
	}{
		{name: "comment", comment: strPtr("c1"), want: ParentRef{Kind: KindComment, ID: "c1"}},
		{name: "folder", folder: strPtr("f1"), want: ParentRef{Kind: KindFolder, ID: "f1"}},
		{name: "software trimmed", software: strPtr("  s1 "), want: ParentRef{Kind: KindSoftware, ID: "s1"}},
		{name: "blank ignored", comment: strPtr(" "), folder: strPtr("f1"), want: ParentRef{Kind: KindFolder, ID: "f1"}},
		{name: "none", wantErr: true},
		{name: "two", comment: strPtr("c1"), folder: strPtr("f1"), wantErr: true},
		{name: "three", comment: strPtr("c1"), folder: strPtr("f1"), software: strPtr("s1"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParentRefFromIDs(tt.comment, tt.folder, tt.software)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidParent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParentRefIDsRoundTrip(t *testing.T) {
	for _, kind := range Kinds {
		ref := ParentRef{Kind: kind, ID: "id-" + string(kind)}
		c, f, s := ref.IDs()
		back, err := ParentRefFromIDs(c, f, s)
		require.NoError(t, err)
		assert.Equal(t, ref, back)
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Folder ")
	require.NoError(t, err)
	assert.Equal(t, KindFolder, k)
	assert.Equal(t, "Folder", k.Title())

	_, err = ParseKind("category")
	assert.Error(t, err)
}
