package handlers_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"hash/crc32"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/letter-api/internal/drawing"
	"github.com/Brownie44l1/letter-api/internal/handlers"
	"github.com/Brownie44l1/letter-api/internal/history"
	"github.com/Brownie44l1/letter-api/internal/model"
	"github.com/Brownie44l1/letter-api/internal/pipeline"
	"github.com/Brownie44l1/letter-api/internal/raster"
	"github.com/Brownie44l1/letter-api/internal/tensor"
)

func favourB(context.Context, *tensor.Scaled) (model.Scores, error) {
	scores := make(model.Scores, model.NumClasses)
	scores[1] = 0.77
	scores[4] = 0.2
	return scores, nil
}

func letterEvents(size float64) []drawing.Event {
	return []drawing.Event{
		{Type: drawing.MouseDown, X: 0.3 * size, Y: 0.1 * size},
		{Type: drawing.MouseMove, X: 0.3 * size, Y: 0.9 * size},
		{Type: drawing.MouseMove, X: 0.7 * size, Y: 0.7 * size},
		{Type: drawing.MouseMove, X: 0.3 * size, Y: 0.5 * size},
		{Type: drawing.MouseUp},
	}
}

func newServer(t *testing.T, c model.Classifier, opts ...handlers.Option) *httptest.Server {
	t.Helper()
	h := handlers.NewHandler(pipeline.New(c), func() bool { return c != nil }, opts...)
	mux := http.NewServeMux()
	h.Routes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type predictionBody struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Confidences map[string]string `json:"confidences"`
}

func TestHealth(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))
	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body := decode[map[string]string](t, resp)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "ready", body["classifier"])
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	down := newServer(t, nil)
	resp2, err := http.Get(down.URL + "/health")
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, "unavailable", decode[map[string]string](t, resp2)["classifier"])
}

func TestPredict_Raster(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))
	img, err := drawing.Replay(90, 90, 6, letterEvents(90))
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: img.Width, Height: img.Height, RGBA: img.Pix})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decode[predictionBody](t, resp)
	assert.NotEmpty(t, body.ID)
	assert.Equal(t, "B", body.Label)
	assert.Equal(t, "0.77", body.Confidences["B"])
	assert.Equal(t, "0.20", body.Confidences["E"])
	assert.Len(t, body.Confidences, 26)
}

func TestPredict_BlankIsNotAvailable(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))
	resp := postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: 50, Height: 40, RGBA: make([]byte, 50*40*4)})
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	body := decode[handlers.ErrorResponse](t, resp)
	assert.Equal(t, "not_available", body.Status)
	assert.Empty(t, body.Label)
	assert.Contains(t, body.Error, "empty input")
}

func TestPredict_Malformed(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))

	resp := postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: 0, Height: 40})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: 2, Height: 2, RGBA: make([]byte, 3)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	bad, err := http.Post(srv.URL+"/predict", "application/json", bytes.NewBufferString("{"))
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	get, err := http.Get(srv.URL + "/predict")
	require.NoError(t, err)
	defer get.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, get.StatusCode)
}

func TestPredict_ClassifierUnavailable(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(func(context.Context, *tensor.Scaled) (model.Scores, error) {
		return nil, model.ErrClassifierUnavailable
	}))
	img, err := drawing.Replay(60, 60, 6, letterEvents(60))
	require.NoError(t, err)

	resp := postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: 60, Height: 60, RGBA: img.Pix})
	require.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "not_available", decode[handlers.ErrorResponse](t, resp).Status)
}

func TestPredictFromImage(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))
	img, err := drawing.Replay(120, 120, 8, letterEvents(120))
	require.NoError(t, err)

	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img.NRGBA()))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "b.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/predict/image", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B", decode[predictionBody](t, resp).Label)
}

func TestPredictFromImage_OpaqueIsEmpty(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))

	opaque := image.NewGray(image.Rect(0, 0, 30, 30))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, opaque))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "photo.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(srv.URL+"/predict/image", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func postImage(t *testing.T, url, name string, data []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", name)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPredict_OversizedIsMalformed(t *testing.T) {
	var calls int
	srv := newServer(t, model.ClassifierFunc(func(ctx context.Context, s *tensor.Scaled) (model.Scores, error) {
		calls++
		return favourB(ctx, s)
	}))

	// the byte count wraps to 0, so an empty buffer would match
	resp := postJSON(t, srv.URL+"/predict", handlers.RasterRequest{Width: 1 << 62, Height: 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "not_available", decode[handlers.ErrorResponse](t, resp).Status)

	resp = postJSON(t, srv.URL+"/predict/strokes", handlers.StrokesRequest{Width: 60000, Height: 60000, Events: letterEvents(60000)})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/predict/strokes", handlers.StrokesRequest{Width: raster.MaxSide + 1, Height: 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	small := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, small))
	huge := pngBuf.Bytes()
	binary.BigEndian.PutUint32(huge[16:20], 60000)
	binary.BigEndian.PutUint32(huge[20:24], 60000)
	binary.BigEndian.PutUint32(huge[29:33], crc32.ChecksumIEEE(huge[12:29]))

	resp = postImage(t, srv.URL+"/predict/image", "huge.png", huge)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, decode[handlers.ErrorResponse](t, resp).Error, "exceeds")

	resp = postImage(t, srv.URL+"/predict/image", "junk.png", []byte("junk"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Zero(t, calls)
}

func TestPredictFromStrokes(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))

	resp := postJSON(t, srv.URL+"/predict/strokes", handlers.StrokesRequest{Width: 100, Height: 100, Events: letterEvents(100)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "B", decode[predictionBody](t, resp).Label)

	resp = postJSON(t, srv.URL+"/predict/strokes", handlers.StrokesRequest{Width: 100, Height: 100,
		Events: []drawing.Event{{Type: "pinch"}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = postJSON(t, srv.URL+"/predict/strokes", handlers.StrokesRequest{Width: 100, Height: 100})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

type fakeHistory struct {
	limit int
	err   error
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.limit = limit
	if f.err != nil {
		return nil, f.err
	}
	return []history.Entry{{ID: "x", Label: "Q", CreatedAt: time.Unix(0, 0).UTC()}}, nil
}

func TestHistory(t *testing.T) {
	disabled := newServer(t, model.ClassifierFunc(favourB))
	resp, err := http.Get(disabled.URL + "/history")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	fh := &fakeHistory{}
	srv := newServer(t, model.ClassifierFunc(favourB), handlers.WithHistory(fh, 20))

	resp, err = http.Get(srv.URL + "/history?limit=500")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	entries := decode[[]history.Entry](t, resp)
	require.Len(t, entries, 1)
	assert.Equal(t, "Q", entries[0].Label)
	assert.Equal(t, 20, fh.limit)

	bad, err := http.Get(srv.URL + "/history?limit=abc")
	require.NoError(t, err)
	bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)

	fh.err = errors.New("db down")
	failed, err := http.Get(srv.URL + "/history")
	require.NoError(t, err)
	failed.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, failed.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv := newServer(t, model.ClassifierFunc(favourB))
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/predict", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")
}
