package jobs

import (
	"bytes"
	"testing"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeSharedVolume(t *testing.T) {
	merged := Merge([]JobSpec{
		{ConfigVolume: "nova", Tags: "a", Manifest: "include ::nova::api", Image: "img1", Volumes: []string{"/x:/x"}},
		{ConfigVolume: "nova", Tags: "b", Manifest: "include ::nova::compute", Image: "img1", Volumes: []string{"/y:/y"}, Privileged: true},
	}, log.NewNopLogger())

	require.Equal(t, 1, merged.Len())
	job, ok := merged.Get("nova")
	require.True(t, ok)

	assert.Equal(t, "a,b", job.Tags)
	assert.Equal(t, ManifestPreamble+"\ninclude ::nova::api\ninclude ::nova::compute", job.Manifest)
	assert.Equal(t, "img1", job.Image)
	assert.Equal(t, []string{"/x:/x", "/y:/y"}, job.Volumes)
	assert.True(t, job.Privileged)
	assert.False(t, job.KeepContainer)
}

func TestMergeImageMismatchKeepsFirst(t *testing.T) {
	var buf bytes.Buffer
	merged := Merge([]JobSpec{
		{ConfigVolume: "heat", Manifest: "m1", Image: "img1"},
		{ConfigVolume: "heat", Manifest: "m2", Image: "img2", KeepContainer: true},
	}, log.NewLogfmtLogger(&buf))

	job, ok := merged.Get("heat")
	require.True(t, ok)
	assert.Equal(t, "img1", job.Image)
	assert.True(t, job.KeepContainer)
	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), "ignored_image=img2")
}

func TestMergePreservesFirstSeenOrder(t *testing.T) {
	merged := Merge([]JobSpec{
		{ConfigVolume: "nova", Manifest: "m", Image: "i"},
		{ConfigVolume: "", Manifest: "m", Image: "i"},
		{ConfigVolume: "heat", Manifest: "m", Image: "i"},
		{ConfigVolume: "nova", Tags: "x", Manifest: "m", Image: "i"},
		{ConfigVolume: "", Tags: "y", Manifest: "m", Image: "i"},
	}, log.NewNopLogger())

	assert.Equal(t, []string{"nova", "", "heat"}, merged.Keys())

	var seen []string
	merged.Each(func(j MergedJob) { seen = append(seen, j.ConfigVolume) })
	assert.Equal(t, merged.Keys(), seen)

	empty, ok := merged.Get("")
	require.True(t, ok)
	assert.Equal(t, "y", empty.Tags)
}

func TestMergeTagsKeepDuplicates(t *testing.T) {
	merged := Merge([]JobSpec{
		{ConfigVolume: "v", Tags: "a", Manifest: "m", Image: "i"},
		{ConfigVolume: "v", Tags: "", Manifest: "m", Image: "i"},
		{ConfigVolume: "v", Tags: "a", Manifest: "m", Image: "i"},
	}, log.NewNopLogger())

	job, _ := merged.Get("v")
	assert.Equal(t, "a,a", job.Tags)
}

func TestMergeDoesNotAliasSpecVolumes(t *testing.T) {
	volumes := make([]string, 1, 4)
	volumes[0] = "/a:/a"
	specs := []JobSpec{
		{ConfigVolume: "v", Manifest: "m", Image: "i", Volumes: volumes},
		{ConfigVolume: "v", Manifest: "m", Image: "i", Volumes: []string{"/b:/b"}},
	}
	Merge(specs, log.NewNopLogger())
	assert.Equal(t, []string{"/a:/a"}, specs[0].Volumes)
	assert.Equal(t, "/a:/a", volumes[:2][0])
	assert.Equal(t, "", volumes[:2][1])
}
