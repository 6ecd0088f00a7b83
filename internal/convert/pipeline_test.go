package convert_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"xlsmconv/internal/convert"
	"xlsmconv/internal/storage"
	"xlsmconv/internal/transcode"
)

// fakeFetcher serves canned bytes per reference and records whether it was
// called at all.
type fakeFetcher struct {
	data  map[string][]byte
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, ref string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.data[ref]
	if !ok {
		return nil, &convert.UpstreamStatusError{StatusCode: 404}
	}
	return data, nil
}

func workbookBytes(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "Region"))
	require.NoError(t, f.SetCellValue("Sheet1", "B1", "Total"))
	require.NoError(t, f.SetCellValue("Sheet1", "A2", "North"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1250))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func fixedClock() func() time.Time {
	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newPipeline(t *testing.T, opts convert.Options, fetcher convert.Fetcher, store convert.Store) *convert.Pipeline {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	return convert.NewPipeline(opts, fetcher, transcode.New(), store, logger).WithClock(fixedClock())
}

func TestPipelineSuccessTimestamped(t *testing.T) {
	const ref = "https://host/container/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: workbookBytes(t)}}
	store := storage.NewMemory("https://acct.blob.core.windows.net/converted", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingTimestamped, LinkTTL: time.Hour}, fetcher, store)
	result, err := p.Convert(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, "report_20240101120000.xlsx", result.ObjectName)
	assert.Contains(t, result.Link.URL, "report_20240101120000.xlsx")

	_, ok := store.Get(result.ObjectName)
	assert.True(t, ok, "published object should exist under the derived name")
}

func TestPipelineFlatNamingIsIdempotent(t *testing.T) {
	const ref = "https://host/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: workbookBytes(t)}}
	store := storage.NewMemory("memory://converted", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)

	first, err := p.Convert(context.Background(), ref)
	require.NoError(t, err)
	second, err := p.Convert(context.Background(), ref)
	require.NoError(t, err)

	assert.Equal(t, "report.xlsx", first.ObjectName)
	assert.Equal(t, first.ObjectName, second.ObjectName)
	assert.Equal(t, 1, store.Len(), "flat naming must overwrite, not duplicate")
}

func TestPipelinePrefixedNaming(t *testing.T) {
	const ref = "https://host/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: workbookBytes(t)}}
	store := storage.NewMemory("memory://out", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, Prefix: "converted", LinkTTL: time.Hour}, fetcher, store)
	result, err := p.Convert(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "converted/report.xlsx", result.ObjectName)
}

func TestPipelineRejectsUnsupportedExtensionWithoutFetching(t *testing.T) {
	fetcher := &fakeFetcher{}
	store := storage.NewMemory("memory://out", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)
	_, err := p.Convert(context.Background(), "https://host/report.txt")

	var cerr *convert.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, convert.KindUnsupportedSourceType, cerr.Kind)
	assert.Equal(t, 400, cerr.HTTPStatus())
	assert.Zero(t, fetcher.calls, "no fetch may be attempted for a rejected reference")
}

func TestPipelineSurfacesUpstreamStatus(t *testing.T) {
	fetcher := &fakeFetcher{} // no data: every fetch 404s
	store := storage.NewMemory("memory://out", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)
	_, err := p.Convert(context.Background(), "https://host/missing.xlsm")

	var cerr *convert.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, convert.KindSourceFetch, cerr.Kind)
	assert.Equal(t, 404, cerr.UpstreamStatus)
	assert.Equal(t, 400, cerr.HTTPStatus())
}

func TestPipelineRejectsUnreadableSource(t *testing.T) {
	const ref = "https://host/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: []byte("this is not a workbook")}}
	store := storage.NewMemory("memory://out", []byte("test-key"))

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)
	_, err := p.Convert(context.Background(), ref)

	var cerr *convert.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, convert.KindUnreadableSource, cerr.Kind)
	assert.True(t, errors.Is(err, transcode.ErrInvalidFormat))
	assert.Zero(t, store.Len(), "nothing may be published for an unreadable source")
}

func TestPipelineLinkIssuanceFailureAfterPublish(t *testing.T) {
	const ref = "https://host/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: workbookBytes(t)}}
	store := storage.NewMemory("memory://out", nil) // no signing credential

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)
	_, err := p.Convert(context.Background(), ref)

	var cerr *convert.Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, convert.KindLinkIssuance, cerr.Kind)
	assert.Equal(t, 500, cerr.HTTPStatus())
	assert.True(t, errors.Is(err, storage.ErrNoSigningCredential))

	// The object is durably published even though no link was returned.
	_, ok := store.Get("report.xlsx")
	assert.True(t, ok, "orphaned object must be present under its derived name")
}

func TestPipelineSignedLinkRespectsTTL(t *testing.T) {
	const ref = "https://host/report.xlsm"
	fetcher := &fakeFetcher{data: map[string][]byte{ref: workbookBytes(t)}}
	store := storage.NewMemory("memory://out", []byte("test-key")).WithClock(fixedClock())

	p := newPipeline(t, convert.Options{Policy: convert.NamingFlat, LinkTTL: time.Hour}, fetcher, store)
	result, err := p.Convert(context.Background(), ref)
	require.NoError(t, err)

	issued := fixedClock()()
	assert.Equal(t, issued.Add(time.Hour), result.Link.ExpiresAt)
	assert.True(t, store.VerifyURL(result.Link.URL, result.ObjectName, issued.Add(30*time.Minute)))
	assert.False(t, store.VerifyURL(result.Link.URL, result.ObjectName, issued.Add(2*time.Hour)))
}
