package denylist_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sourcelens/codekb/internal/denylist"
)

func TestIsDenied_Directories(t *testing.T) {
	assert.True(t, denylist.IsDenied("node_modules/react/index.js", nil))
	assert.True(t, denylist.IsDenied("vendor/github.com/foo/bar.go", nil))
	assert.True(t, denylist.IsDenied("a/b/.git/HEAD", nil))
	assert.False(t, denylist.IsDenied("src/main.go", nil))
}

func TestIsDenied_Extensions(t *testing.T) {
	assert.True(t, denylist.IsDenied("assets/logo.png", nil))
	assert.True(t, denylist.IsDenied("dist/app.min.js", nil))
	assert.False(t, denylist.IsDenied("src/app.js", nil))
}

func TestIsDenied_ExactFiles(t *testing.T) {
	assert.True(t, denylist.IsDenied("package-lock.json", nil))
	assert.True(t, denylist.IsDenied("sub/dir/go.sum", nil))
	assert.False(t, denylist.IsDenied("go.mod", nil))
}

func TestIsDenied_PathDenialHoldsForAnySize(t *testing.T) {
	zero := int64(0)
	huge := int64(10_000_000)
	assert.True(t, denylist.IsDenied("assets/logo.png", &zero))
	assert.True(t, denylist.IsDenied("assets/logo.png", &huge))

	over := denylist.MaxFileSizeBytes + 1
	wayOver := over * 2
	assert.True(t, denylist.IsDenied("src/ok.go", &over))
	assert.True(t, denylist.IsDenied("src/ok.go", &wayOver))
}

func TestIsDenied_Size(t *testing.T) {
	small := int64(100)
	big := int64(denylist.MaxFileSizeBytes + 1)
	assert.False(t, denylist.IsDenied("src/main.go", &small))
	assert.True(t, denylist.IsDenied("src/main.go", &big))
	assert.False(t, denylist.IsDenied("src/main.go", nil))
}
