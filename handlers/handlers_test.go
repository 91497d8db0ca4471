package handlers

import (
	"bytes"
	"commitment-wall/annotator"
	"commitment-wall/models"
	"commitment-wall/repository"
	"commitment-wall/storage"
	"commitment-wall/tests" // For test helpers
	"commitment-wall/wall"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var testDB *gorm.DB

// TestMain for handlers package
func TestMain(m *testing.M) {
	var err error
	testDB, err = tests.SetupTestDB()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to set up test DB: %v\n", err)
		os.Exit(1)
	}

	exitCode := m.Run()
	tests.TeardownTestDB(testDB)
	os.Exit(exitCode)
}

// fixedIntN always picks the last category and an impact score of 80.
func fixedIntN(n int) int {
	if n > 20 {
		return 20
	}
	return n - 1
}

// newTestApp wires a fresh wall onto an empty key-value table.
func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	require.NoError(t, tests.ClearKVEntries(testDB))
	t.Cleanup(func() { require.NoError(t, tests.ClearKVEntries(testDB)) })

	repo := repository.New(storage.NewKVStore(testDB), "commitments")
	mock := annotator.NewMock(annotator.WithDelay(0), annotator.WithIntN(fixedIntN))
	loop := wall.NewLoop(repo, mock, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		_ = loop.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-stopped
	})

	h := New(repo, loop, mock, Options{MaxVideoBytes: 1024}, nil)
	h.now = func() time.Time { return time.Date(2025, 3, 7, 10, 0, 0, 0, time.UTC) }

	app := tests.CreateTestApp()
	h.SetupRoutes(app)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, target string, payload any) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := app.Test(req, -1) // -1 for no timeout
	require.NoError(t, err)
	return resp
}

func doForm(t *testing.T, app *fiber.App, target string, values url.Values) (*http.Response, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func decodeError(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body["error"]
}

func textPledge(name string) map[string]string {
	return map[string]string{
		"name":        name,
		"company":     "Acme Farms",
		"email":       strings.ToLower(name) + "@example.com",
		"message":     "We will empower 500 farmers with new tools",
		"category":    "Agriculture",
		"inputMethod": "text",
	}
}

// createPledge posts a text pledge through the API and returns it with its passcode.
func createPledge(t *testing.T, app *fiber.App, name string) models.Pledge {
	t.Helper()
	resp := doJSON(t, app, http.MethodPost, "/api/pledges", textPledge(name))
	defer resp.Body.Close()
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	var p models.Pledge
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
	return p
}

func TestCreatePledgeAPI(t *testing.T) {
	app := newTestApp(t)

	t.Run("Text pledge is annotated", func(t *testing.T) {
		p := createPledge(t, app, "Amara")
		assert.NotEmpty(t, p.ID)
		assert.Len(t, p.Passcode, 6)
		assert.Equal(t, models.InputMethodText, p.InputMethod)
		assert.Equal(t, models.SentimentVeryPositive, p.AISentiment)
		assert.Equal(t, "80/100", p.AIImpactScore)
		assert.Equal(t, string(models.CategoryAgriculture), p.AICategory)
		assert.NotEmpty(t, p.Date)
		assert.NotEmpty(t, p.Timestamp)
	})

	t.Run("Preview annotation is kept", func(t *testing.T) {
		payload := textPledge("Kofi")
		payload["aiCategory"] = "Education"
		payload["aiSentiment"] = "Positive"
		payload["aiImpactScore"] = "61/100"

		resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var p models.Pledge
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
		assert.Equal(t, "Education", p.AICategory)
		assert.Equal(t, "61/100", p.AIImpactScore)
	})

	t.Run("Out-of-range preview annotation", func(t *testing.T) {
		cases := []struct {
			field, value, problem string
		}{
			{"aiCategory", "Nonsense", `Unknown AI category "Nonsense".`},
			{"aiSentiment", "Hostile", `Unknown AI sentiment "Hostile".`},
			{"aiImpactScore", "5000/100", `AI impact score "5000/100" must look like NN/100`},
		}
		for _, tc := range cases {
			payload := textPledge("Zola")
			payload[tc.field] = tc.value

			resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, tc.field)
			assert.Contains(t, decodeError(t, resp), tc.problem)
		}

		resp := doJSON(t, app, http.MethodGet, "/api/stats", nil)
		var stats repository.Stats
		require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &stats))
		assert.LessOrEqual(t, stats.TotalImpact, stats.Count*models.MaxImpactScore)
	})

	t.Run("Missing fields", func(t *testing.T) {
		payload := textPledge("Zola")
		payload["name"] = "   "
		payload["category"] = ""

		resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		msg := decodeError(t, resp)
		assert.Contains(t, msg, "Name is required.")
		assert.Contains(t, msg, "Please select a category.")
	})

	t.Run("Malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/pledges", strings.NewReader("{not json"))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Cannot parse request payload", decodeError(t, resp))
	})

	t.Run("Video pledge without a file", func(t *testing.T) {
		payload := textPledge("Nia")
		payload["inputMethod"] = "video"
		payload["message"] = ""

		resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp), "Please upload a video file or switch to voice input.")
	})

	t.Run("Video data URI in JSON", func(t *testing.T) {
		payload := textPledge("Nia")
		payload["inputMethod"] = "video"
		payload["videoName"] = "nia.mp4"
		payload["videoData"] = "data:video/mp4;base64," + base64.StdEncoding.EncodeToString([]byte("tiny"))

		resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var p models.Pledge
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
		assert.Equal(t, models.InputMethodVideo, p.InputMethod)
		assert.Equal(t, "Video Pledge - nia.mp4", p.Message)
		assert.Equal(t, models.DefaultImpactScore, p.AIImpactScore)
	})

	t.Run("Video data URI of the wrong type", func(t *testing.T) {
		payload := textPledge("Nia")
		payload["inputMethod"] = "video"
		payload["videoData"] = "data:text/html;base64,PGI+"

		resp := doJSON(t, app, http.MethodPost, "/api/pledges", payload)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})
}

func videoUpload(t *testing.T, fields map[string]string, fileName string, content []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	header := make(map[string][]string)
	header["Content-Disposition"] = []string{fmt.Sprintf(`form-data; name="video"; filename="%s"`, fileName)}
	header["Content-Type"] = []string{"video/mp4"}
	part, err := w.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/pledges", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestCreateVideoPledgeMultipart(t *testing.T) {
	app := newTestApp(t)
	fields := map[string]string{
		"name":        "Thandi",
		"company":     "Lumen Labs",
		"email":       "thandi@example.com",
		"category":    "Technology",
		"inputMethod": "video",
	}

	t.Run("Upload is inlined", func(t *testing.T) {
		resp, err := app.Test(videoUpload(t, fields, "pledge.mp4", []byte("fake-mp4")), -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusCreated, resp.StatusCode)

		var p models.Pledge
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&p))
		assert.Equal(t, "Video Pledge - pledge.mp4", p.Message)
		assert.Equal(t, "data:video/mp4;base64,"+base64.StdEncoding.EncodeToString([]byte("fake-mp4")), p.VideoData)
		assert.Equal(t, "Positive", p.AISentiment)
	})

	t.Run("Upload over the limit", func(t *testing.T) {
		resp, err := app.Test(videoUpload(t, fields, "big.mp4", bytes.Repeat([]byte("x"), 2048)), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, decodeError(t, resp), "Video file is too large.")
	})
}

func TestListAndGetPledgesAPI(t *testing.T) {
	app := newTestApp(t)

	first := createPledge(t, app, "Amara")
	second := createPledge(t, app, "Kofi")

	t.Run("Newest first without passcodes", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/pledges", nil)
		body := readBody(t, resp)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, `"passcode"`)

		var pledges []models.Pledge
		require.NoError(t, json.Unmarshal([]byte(body), &pledges))
		require.Len(t, pledges, 2)
		assert.Equal(t, second.ID, pledges[0].ID)
		assert.Equal(t, first.ID, pledges[1].ID)
	})

	t.Run("Get one", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/pledges/"+first.ID, nil)
		body := readBody(t, resp)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, `"passcode"`)

		var p models.Pledge
		require.NoError(t, json.Unmarshal([]byte(body), &p))
		assert.Equal(t, "Amara", p.Name)
	})

	t.Run("Get unknown", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/pledges/nope", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "Pledge not found", decodeError(t, resp))
	})
}

func TestUpdatePledgeAPI(t *testing.T) {
	app := newTestApp(t)
	p := createPledge(t, app, "Amara")

	edit := map[string]string{
		"passcode": p.Passcode,
		"name":     "Amara O.",
		"company":  "Acme Farms",
		"email":    "amara@example.com",
		"message":  "We will train 800 farmers",
		"category": "Education",
	}

	t.Run("Wrong passcode", func(t *testing.T) {
		bad := map[string]string{}
		for k, v := range edit {
			bad[k] = v
		}
		bad["passcode"] = "000000"
		resp := doJSON(t, app, http.MethodPut, "/api/pledges/"+p.ID, bad)
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "Invalid passcode! You cannot change this pledge.", decodeError(t, resp))
	})

	t.Run("Empty passcode", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut, "/api/pledges/"+p.ID, map[string]string{"name": "x"})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "Passcode cannot be empty", decodeError(t, resp))
	})

	t.Run("Unknown id", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut, "/api/pledges/nope", edit)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})

	t.Run("Valid edit", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPut, "/api/pledges/"+p.ID, edit)
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var updated models.Pledge
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
		assert.Equal(t, "Amara O.", updated.Name)
		assert.Equal(t, models.CategoryEducation, updated.Category)
		assert.True(t, strings.HasSuffix(updated.Date, models.EditedSuffix))
		assert.Equal(t, p.AIImpactScore, updated.AIImpactScore)
		assert.Empty(t, updated.Passcode)
	})
}

func TestDeletePledgeAPI(t *testing.T) {
	app := newTestApp(t)
	p := createPledge(t, app, "Amara")

	t.Run("Missing passcode", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodDelete, "/api/pledges/"+p.ID, nil)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	})

	t.Run("Wrong passcode", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodDelete, "/api/pledges/"+p.ID, map[string]string{"passcode": "nope"})
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	})

	t.Run("Header passcode", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodDelete, "/api/pledges/"+p.ID, nil)
		req.Header.Set("X-Passcode", p.Passcode)
		resp, err := app.Test(req, -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)

		resp = doJSON(t, app, http.MethodGet, "/api/pledges/"+p.ID, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	})
}

func TestStatsAPI(t *testing.T) {
	app := newTestApp(t)

	resp := doJSON(t, app, http.MethodGet, "/api/stats", nil)
	assert.JSONEq(t, `{"count":0,"totalImpact":0}`, readBody(t, resp))

	createPledge(t, app, "Amara")
	createPledge(t, app, "Kofi")

	resp = doJSON(t, app, http.MethodGet, "/api/stats", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"count":2,"totalImpact":160}`, readBody(t, resp))
}

func TestAnalyzeAPI(t *testing.T) {
	app := newTestApp(t)

	t.Run("Short message", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/analyze", map[string]string{"message": "too short"})
		assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	})

	t.Run("Long message", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodPost, "/api/analyze", map[string]string{"message": "We will build clinics in every district"})
		defer resp.Body.Close()
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		var out AnalyzeResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
		assert.Equal(t, models.CategoryAgriculture, out.Category)
		assert.Equal(t, models.SentimentVeryPositive, out.Sentiment)
		assert.Equal(t, 80, out.ImpactScore)
		assert.Equal(t, "80/100", out.ImpactLabel)
	})
}

func TestExportAPI(t *testing.T) {
	app := newTestApp(t)

	t.Run("Nothing to export", func(t *testing.T) {
		resp := doJSON(t, app, http.MethodGet, "/api/export", nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "No pledges to export yet! Please add some commitments first.", decodeError(t, resp))
	})

	t.Run("CSV download", func(t *testing.T) {
		createPledge(t, app, "Amara")
		createPledge(t, app, "Kofi")

		resp := doJSON(t, app, http.MethodGet, "/api/export", nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get(fiber.HeaderContentType))
		assert.Contains(t, resp.Header.Get(fiber.HeaderContentDisposition), "Simply_Complex_Africa_Pledges_2025-03-07.csv")

		body := readBody(t, resp)
		assert.True(t, strings.HasPrefix(body, "\uFEFF"))
		lines := strings.Split(strings.TrimRight(body, "\r\n"), "\n")
		require.Len(t, lines, 3)
		assert.True(t, strings.HasPrefix(lines[1], "1,Kofi,"))
		assert.True(t, strings.HasPrefix(lines[2], "2,Amara,"))
	})
}

func TestWallPage(t *testing.T) {
	app := newTestApp(t)

	t.Run("Empty wall", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil), -1)
		require.NoError(t, err)
		body := readBody(t, resp)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, body, `id="noPledges"`)
		assert.Contains(t, body, `<strong id="totalPledges">0</strong>`)
	})

	t.Run("Rejected submit refills the form", func(t *testing.T) {
		resp, body := doForm(t, app, "/", url.Values{
			"name":        {"Amara"},
			"company":     {""},
			"email":       {"amara@example.com"},
			"message":     {"We will empower farmers"},
			"category":    {"Agriculture"},
			"inputMethod": {"text"},
		})
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
		assert.Contains(t, body, "Company is required.")
		assert.Contains(t, body, `value="Amara"`)
	})

	var passcode string
	t.Run("Successful submit shows the passcode", func(t *testing.T) {
		resp, body := doForm(t, app, "/", url.Values{
			"name":        {"Amara"},
			"company":     {"Acme Farms"},
			"email":       {"amara@example.com"},
			"message":     {"We will empower farmers"},
			"category":    {"Agriculture"},
			"inputMethod": {"text"},
		})
		assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
		assert.Contains(t, body, "Pledge submitted successfully!")
		assert.Contains(t, body, `class="commitment-card"`)
		assert.Contains(t, body, `<strong id="totalPledges">1</strong>`)

		start := strings.Index(body, `<div class="passcode-display">`)
		require.GreaterOrEqual(t, start, 0)
		rest := body[start+len(`<div class="passcode-display">`):]
		passcode = rest[:strings.Index(rest, "<")]
		assert.Len(t, passcode, 6)
	})

	resp := doJSON(t, app, http.MethodGet, "/api/pledges", nil)
	var pledges []models.Pledge
	require.NoError(t, json.Unmarshal([]byte(readBody(t, resp)), &pledges))
	require.Len(t, pledges, 1)
	id := pledges[0].ID

	t.Run("Edit with the wrong passcode", func(t *testing.T) {
		resp, body := doForm(t, app, "/pledges/"+id+"/edit", url.Values{
			"passcode": {"000000"},
			"name":     {"Amara"},
			"company":  {"Acme Farms"},
			"email":    {"amara@example.com"},
			"message":  {"changed"},
			"category": {"Agriculture"},
		})
		assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
		assert.Contains(t, body, "Invalid passcode! You cannot change this pledge.")
	})

	t.Run("Edit an unknown pledge is ignored", func(t *testing.T) {
		resp, body := doForm(t, app, "/pledges/nope/edit", url.Values{"passcode": {passcode}})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.NotContains(t, body, "Pledge not found")
	})

	t.Run("Edit", func(t *testing.T) {
		resp, body := doForm(t, app, "/pledges/"+id+"/edit", url.Values{
			"passcode": {passcode},
			"name":     {"Amara O."},
			"company":  {"Acme Farms"},
			"email":    {"amara@example.com"},
			"message":  {"We will train farmers"},
			"category": {"Education"},
		})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Pledge updated successfully!")
		assert.Contains(t, body, "Amara O.")
		assert.Contains(t, body, "(Edited)")
	})

	t.Run("Export page", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/export", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "Amara O.")
	})

	t.Run("Delete", func(t *testing.T) {
		resp, body := doForm(t, app, "/pledges/"+id+"/delete", url.Values{"passcode": {passcode}})
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Contains(t, body, "Pledge deleted successfully!")
		assert.NotContains(t, body, `class="commitment-card"`)
	})

	t.Run("Export page with nothing to export", func(t *testing.T) {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/export", nil), -1)
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
		assert.Contains(t, readBody(t, resp), "No pledges to export yet!")
	})
}
