// Copyright IBM Corp. 2020, 2025
// SPDX-License-Identifier: BUSL-1.1

package dbtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitImage(t *testing.T) {
	t.Parallel()
	tests := []struct {
		image    string
		wantRepo string
		wantTag  string
		wantErr  bool
	}{
		{image: "postgres", wantRepo: "postgres", wantTag: "15"},
		{image: "postgres:16-alpine", wantRepo: "postgres", wantTag: "16-alpine"},
		{image: "mysql", wantErr: true},
		{image: "a:b:c", wantErr: true},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.image, func(t *testing.T) {
			t.Parallel()
			repo, tag, err := splitImage(tt.image)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantRepo, repo)
			assert.Equal(t, tt.wantTag, tag)
		})
	}
}

func TestReplaceDatabase(t *testing.T) {
	t.Parallel()
	got, err := replaceDatabase("postgres://u:p@localhost:5432/patcher?sslmode=disable", "other")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/other?sslmode=disable", got)

	got, err = replaceDatabase("postgres://u:p@localhost:5432", "other")
	require.NoError(t, err)
	assert.Equal(t, "postgres://u:p@localhost:5432/other", got)
}

func TestRandomDatabaseName(t *testing.T) {
	t.Parallel()
	a, b := RandomDatabaseName(), RandomDatabaseName()
	assert.Len(t, a, len("patcher_test_")+16)
	assert.NotEqual(t, a, b)
}
