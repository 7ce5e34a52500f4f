package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-sheet-sync/pkg/logging"
)

// mockS3Client records PutObject/GetObject calls for testing.
type mockS3Client struct {
	putCalls []putCall
	objects  map[string][]byte
	getErr   error
}

type putCall struct {
	bucket   string
	key      string
	body     []byte
	metadata map[string]string
}

func newMockS3() *mockS3Client {
	return &mockS3Client{objects: make(map[string][]byte)}
}

func (m *mockS3Client) PutObject(_ context.Context, input *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, _ := io.ReadAll(input.Body)
	m.putCalls = append(m.putCalls, putCall{bucket: *input.Bucket, key: *input.Key, body: body, metadata: input.Metadata})
	m.objects[*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3Client) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.objects[*input.Key]
	if !ok {
		return nil, &s3types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestStore_ArchiveExport(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "test-bucket", "", logging.Discard())
	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	key, err := store.ArchiveExport(context.Background(), ExportFile{
		Name:       "/exports/outpatient/0303.xlsx",
		Kind:       "outpatient",
		SHA256:     "abcdef0123456789abcdef",
		Outcome:    "imported",
		ImportedAt: at,
	}, []byte("xlsx-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "emr-exports/v1/by-date/2025/03/03/outpatient/abcdef012345_0303.xlsx", key)

	require.Len(t, mock.putCalls, 2)
	assert.Equal(t, "test-bucket", mock.putCalls[0].bucket)
	assert.Equal(t, []byte("xlsx-bytes"), mock.putCalls[0].body)
	assert.Equal(t, "imported", mock.putCalls[0].metadata["outcome"])

	manifest := string(mock.objects["emr-exports/v1/manifests/2025-03.jsonl"])
	assert.Contains(t, manifest, `"s3_key":"`+key+`"`)
	assert.True(t, strings.HasSuffix(manifest, "\n"))
}

func TestStore_ManifestAppends(t *testing.T) {
	mock := newMockS3()
	store := NewStore(mock, "b", "p", logging.Discard())
	at := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{Name: "a"}, at))
	require.NoError(t, store.AppendManifest(context.Background(), ManifestEntry{Name: "b"}, at))

	lines := strings.Split(strings.TrimSpace(string(mock.objects["p/manifests/2025-03.jsonl"])), "\n")
	assert.Len(t, lines, 2)
}

func TestStore_ManifestGetErrorIsReported(t *testing.T) {
	mock := newMockS3()
	mock.getErr = errors.New("access denied")
	store := NewStore(mock, "b", "", logging.Discard())

	err := store.AppendManifest(context.Background(), ManifestEntry{Name: "a"}, time.Now())
	assert.Error(t, err)
}

func TestStore_DisabledIsNoop(t *testing.T) {
	store := NewStore(nil, "", "", nil)
	assert.False(t, store.Enabled())

	key, err := store.ArchiveExport(context.Background(), ExportFile{Name: "x.xlsx"}, nil)
	require.NoError(t, err)
	assert.Empty(t, key)

	var nilStore *Store
	assert.False(t, nilStore.Enabled())
}
