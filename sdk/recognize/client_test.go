package recognize

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const okSOAPReply = `<?xml version="1.0" encoding="UTF-8"?>
<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/" xmlns:ns1="http://clapi.itraff.pl" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance" xmlns:ns2="http://xml.apache.org/xml-soap">
<SOAP-ENV:Body><ns1:response><return xsi:type="ns2:Map">
<item><key xsi:type="xsd:string">status</key><value xsi:type="xsd:int">0</value></item>
<item><key xsi:type="xsd:string">message</key><value xsi:type="xsd:string">ok</value></item>
</return></ns1:response></SOAP-ENV:Body></SOAP-ENV:Envelope>`

type soapRequest struct {
	action string
	body   []byte
	cookie string
}

type recognizeRequest struct {
	path        string
	hash        string
	contentType string
	body        []byte
}

type fakeService struct {
	server *httptest.Server

	mu        sync.Mutex
	soap      []soapRequest
	recognize []recognizeRequest

	soapStatus      int
	soapReply       string
	recognizeStatus int
	recognizeReply  string
	// logoutOn names an operation whose reply deletes the session cookie.
	logoutOn string
}

func newFakeService(t *testing.T) *fakeService {
	t.Helper()
	f := &fakeService{
		soapStatus:      http.StatusOK,
		soapReply:       okSOAPReply,
		recognizeStatus: http.StatusOK,
		recognizeReply:  `{"status":0,"message":"ok","objects":[{"id":"img-1","name":"Poznan","location":[{"x":1,"y":2}]}]}`,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/soap", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		req := soapRequest{action: r.Header.Get("SOAPAction"), body: body}
		if c, err := r.Cookie("PHPSESSID"); err == nil {
			req.cookie = c.Value
		}

		f.mu.Lock()
		f.soap = append(f.soap, req)
		status, reply, logoutOn := f.soapStatus, f.soapReply, f.logoutOn
		f.mu.Unlock()

		if req.action == soapAction("auth") {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "session-1"})
		}
		if logoutOn != "" && req.action == soapAction(logoutOn) {
			http.SetCookie(w, &http.Cookie{Name: "PHPSESSID", Value: "deleted", MaxAge: -1})
		}
		w.Header().Set("Content-Type", "text/xml")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	})
	mux.HandleFunc("/v2/recognize/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)

		f.mu.Lock()
		f.recognize = append(f.recognize, recognizeRequest{
			path:        r.URL.Path,
			hash:        r.Header.Get(HashHeader),
			contentType: r.Header.Get("Content-Type"),
			body:        body,
		})
		status, reply := f.recognizeStatus, f.recognizeReply
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeService) soapRequests() []soapRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]soapRequest(nil), f.soap...)
}

func (f *fakeService) recognizeRequests() []recognizeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recognizeRequest(nil), f.recognize...)
}

func (f *fakeService) client(t *testing.T, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{
		WithSOAPEndpoint(f.server.URL + "/soap"),
		WithRecognizeEndpoint(f.server.URL + "/v2/recognize"),
	}, opts...)
	c, err := New(context.Background(), "42", "api-key", "clapi-key", opts...)
	require.NoError(t, err)
	return c
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.Bytes()
}

func writeFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.png")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

// operationElement returns the child of SOAP-ENV:Body.
func operationElement(t *testing.T, body []byte) *etree.Element {
	t.Helper()
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromBytes(body))
	bodyEl := doc.FindElement("//Body")
	require.NotNil(t, bodyEl)
	children := bodyEl.ChildElements()
	require.Len(t, children, 1)
	return children[0]
}

func TestNewAuthenticatesAndKeepsSessionCookies(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	var sessionCookie string
	for _, ck := range c.Session().Cookies() {
		if ck.Name == "PHPSESSID" {
			sessionCookie = ck.Value
		}
	}
	assert.Equal(t, "session-1", sessionCookie)

	_, err := c.IndexStatus(context.Background())
	require.NoError(t, err)

	reqs := f.soapRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, soapAction("auth"), reqs[0].action)
	assert.Empty(t, reqs[0].cookie)
	assert.Equal(t, "session-1", reqs[1].cookie)
}

func TestNewFailsWhenAuthFails(t *testing.T) {
	f := newFakeService(t)
	f.soapStatus = http.StatusInternalServerError
	f.soapReply = `<SOAP-ENV:Envelope xmlns:SOAP-ENV="http://schemas.xmlsoap.org/soap/envelope/"><SOAP-ENV:Body><SOAP-ENV:Fault><faultcode>SOAP-ENV:Client</faultcode><faultstring>Invalid client</faultstring></SOAP-ENV:Fault></SOAP-ENV:Body></SOAP-ENV:Envelope>`

	_, err := New(context.Background(), "42", "api-key", "bad",
		WithSOAPEndpoint(f.server.URL+"/soap"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Equal(t, "Invalid client", statusErr.Fault)
}

func TestExplicitAuthSendsSameBodyAsConstruction(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.Auth(context.Background(), "42", "clapi-key")
	require.NoError(t, err)

	reqs := f.soapRequests()
	require.Len(t, reqs, 2)
	assert.Equal(t, reqs[0].body, reqs[1].body)

	op := operationElement(t, reqs[0].body)
	assert.Equal(t, "42", op.SelectElement("client_id").Text())
	assert.Equal(t, "clapi-key", op.SelectElement("key_clapi").Text())
	assert.Equal(t, "", op.SelectElement("ip").Text())
}

func TestOperationNameMatchesEnvelopeAndAction(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	ctx := context.Background()
	imagePath := writeFile(t, []byte{0x01, 0x02})

	calls := []struct {
		operation string
		invoke    func() (Response, error)
	}{
		{"auth", func() (Response, error) { return c.Auth(ctx, "42", "clapi-key") }},
		{"indexBuild", func() (Response, error) { return c.IndexBuild(ctx) }},
		{"imageInsert", func() (Response, error) { return c.ImageInsert(ctx, "id-1", "name", imagePath) }},
		{"imageDelete", func() (Response, error) { return c.ImageDelete(ctx, "id-1") }},
		{"imageUpdate", func() (Response, error) { return c.ImageUpdate(ctx, "id-1", "id-2", "renamed") }},
		{"callback", func() (Response, error) { return c.Callback(ctx, "http://example.com/hook") }},
		{"indexStatus", func() (Response, error) { return c.IndexStatus(ctx) }},
		{"userLimits", func() (Response, error) { return c.UserLimits(ctx) }},
		{"modeGet", func() (Response, error) { return c.ModeGet(ctx) }},
		{"modeChange", func() (Response, error) { return c.ModeChange(ctx, Multi) }},
	}

	for _, tc := range calls {
		t.Run(tc.operation, func(t *testing.T) {
			before := len(f.soapRequests())
			resp, err := tc.invoke()
			require.NoError(t, err)
			assert.Equal(t, "0", resp["status"])

			reqs := f.soapRequests()
			require.Len(t, reqs, before+1)
			last := reqs[len(reqs)-1]
			assert.Equal(t, `"http://clapi.itraff.pl#`+tc.operation+`"`, last.action)

			op := operationElement(t, last.body)
			assert.Equal(t, "ns1", op.Space)
			assert.Equal(t, tc.operation, op.Tag)
		})
	}
}

func TestImageInsertBase64RoundTrip(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	data := encodePNG(t, 120, 80)
	_, err := c.ImageInsert(context.Background(), "id-1", "Poznan", writeFile(t, data))
	require.NoError(t, err)

	reqs := f.soapRequests()
	op := operationElement(t, reqs[len(reqs)-1].body)
	decoded, err := base64.StdEncoding.DecodeString(op.SelectElement("data").Text())
	require.NoError(t, err)
	assert.Equal(t, data, decoded)
	assert.Equal(t, "id-1", op.SelectElement("id").Text())
	assert.Equal(t, "Poznan", op.SelectElement("name").Text())
}

func TestImageInsertMissingFileIsIOError(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.ImageInsert(context.Background(), "id-1", "name", filepath.Join(t.TempDir(), "missing.jpg"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
	assert.False(t, errors.Is(err, ErrTransport))
	assert.Len(t, f.soapRequests(), 1)
}

func TestImageUpdateEncodesMap(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.ImageUpdate(context.Background(), "old", "new", "New name")
	require.NoError(t, err)

	reqs := f.soapRequests()
	op := operationElement(t, reqs[len(reqs)-1].body)
	assert.Equal(t, "old", op.SelectElement("ID").Text())

	data := op.SelectElement("data")
	require.NotNil(t, data)
	assert.Equal(t, "ns2:Map", data.SelectAttrValue("xsi:type", ""))
	items := data.SelectElements("item")
	require.Len(t, items, 2)
	assert.Equal(t, "id", items[0].SelectElement("key").Text())
	assert.Equal(t, "new", items[0].SelectElement("value").Text())
	assert.Equal(t, "name", items[1].SelectElement("key").Text())
	assert.Equal(t, "New name", items[1].SelectElement("value").Text())
}

func TestImageDeleteAllSendsEmptyID(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.ImageDeleteAll(context.Background())
	require.NoError(t, err)

	reqs := f.soapRequests()
	body := reqs[len(reqs)-1].body
	assert.Contains(t, string(body), `<ID xsi:type="xsd:string"></ID>`)
}

func TestMalformedSOAPResponse(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.soapReply = `{"not":"xml"}`

	_, err := c.UserLimits(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))

	var opErr *OperationError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "userLimits", opErr.Operation)
	assert.NotEmpty(t, opErr.RequestID)
}

func TestRecognizeSendsHashAndDecodesResult(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	data := encodePNG(t, 400, 400)
	res, err := c.Recognize(context.Background(), writeFile(t, data), Single, true)
	require.NoError(t, err)

	reqs := f.recognizeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v2/recognize/single/all/42", reqs[0].path)
	assert.Equal(t, ContentHash("api-key", data), reqs[0].hash)
	assert.Equal(t, "image/jpeg", reqs[0].contentType)
	assert.Equal(t, data, reqs[0].body)

	status, ok := res.Get("status")
	require.True(t, ok)
	assert.Equal(t, Number, status.Kind())
	assert.Equal(t, int64(0), status.Int())

	name, ok := res.Get("objects.0.name")
	require.True(t, ok)
	assert.Equal(t, "Poznan", name.Text())

	objects := res.Fields()["objects"]
	assert.Equal(t, List, objects.Kind())
	require.Len(t, objects.List(), 1)
	assert.Equal(t, Object, objects.List()[0].Kind())
}

func TestRecognizeMultiWithoutAllURL(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.RecognizeBytes(context.Background(), encodePNG(t, 1000, 1000), Multi, false)
	require.NoError(t, err)

	reqs := f.recognizeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/v2/recognize/multi/42", reqs[0].path)
}

func TestRecognizeSimpleFlattensValues(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.recognizeReply = `{"status": 0, "message": "ok", "found": true, "extra": null, "objects": [ {"id": "img-1"} ]}`

	out, err := c.RecognizeSimple(context.Background(), writeFile(t, encodePNG(t, 400, 400)))
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"status":  "0",
		"message": "ok",
		"found":   "true",
		"extra":   "",
		"objects": `[{"id":"img-1"}]`,
	}, out)
	assert.Equal(t, "/v2/recognize/single/all/42", f.recognizeRequests()[0].path)
}

func TestRecognizeRejectsOversizedSingleImage(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	data := make([]byte, 501*1000)
	_, err := c.Recognize(context.Background(), writeFile(t, data), Single, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageLimits))

	var limitErr *LimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, Single, limitErr.Mode)
	assert.Empty(t, f.recognizeRequests())
}

func TestRecognizeRejectsSmallMultiImage(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.RecognizeBytes(context.Background(), encodePNG(t, 100, 100), Multi, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrImageLimits))
	assert.Empty(t, f.recognizeRequests())
}

func TestRecognizeWithoutLimitChecks(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t, WithImageLimits(false))

	_, err := c.RecognizeBytes(context.Background(), encodePNG(t, 100, 100), Multi, false)
	require.NoError(t, err)
	assert.Len(t, f.recognizeRequests(), 1)
}

func TestRecognizeHTTPFailureIsTransportError(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.recognizeStatus = http.StatusServiceUnavailable
	f.recognizeReply = `{}`

	_, err := c.RecognizeBytes(context.Background(), encodePNG(t, 400, 400), Single, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestRecognizeRejectsNonObjectJSON(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.recognizeReply = `[1,2]`

	_, err := c.RecognizeBytes(context.Background(), encodePNG(t, 400, 400), Single, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedResponse))
}

func TestRecognizeMissingFileIsIOError(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)

	_, err := c.Recognize(context.Background(), filepath.Join(t.TempDir(), "missing.jpg"), Single, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIO))
	assert.Empty(t, f.recognizeRequests())
}

func TestUnreachableEndpointIsTransportError(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.server.Close()

	_, err := c.IndexBuild(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
}

func TestDeletedSessionCookieIsNotSentAgain(t *testing.T) {
	f := newFakeService(t)
	c := f.client(t)
	f.mu.Lock()
	f.logoutOn = "indexStatus"
	f.mu.Unlock()

	_, err := c.IndexStatus(context.Background())
	require.NoError(t, err)
	assert.Empty(t, c.Session().Cookies())

	_, err = c.UserLimits(context.Background())
	require.NoError(t, err)

	reqs := f.soapRequests()
	require.Len(t, reqs, 3)
	assert.Equal(t, "session-1", reqs[1].cookie)
	assert.Empty(t, reqs[2].cookie)
}

type countingTransport struct {
	mu    sync.Mutex
	calls int
}

func (t *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	t.calls++
	t.mu.Unlock()
	return http.DefaultTransport.RoundTrip(req)
}

func TestWithHTTPClientUsesTransportWithoutMutatingCaller(t *testing.T) {
	f := newFakeService(t)
	transport := &countingTransport{}
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	hc := &http.Client{Transport: transport, Jar: jar, Timeout: time.Minute}

	c := f.client(t, WithHTTPClient(hc), WithTimeout(5*time.Second))
	_, err = c.IndexStatus(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, transport.calls)
	assert.Same(t, jar, hc.Jar)
	assert.Equal(t, time.Minute, hc.Timeout)
	assert.Equal(t, "session-1", f.soapRequests()[1].cookie)
}

func TestOperationErrorWithoutKind(t *testing.T) {
	err := newOperationError("imageInsert", "req-1", nil, errors.New("writer closed"))

	assert.Equal(t, "imageInsert (request_id=req-1): writer closed", err.Error())
	for _, kind := range []error{ErrTransport, ErrIO, ErrImageLimits, ErrMalformedResponse} {
		assert.False(t, errors.Is(err, kind))
	}

	withKind := newOperationError("imageInsert", "", ErrIO, errors.New("missing"))
	assert.Equal(t, "imageInsert: image read failure: missing", withKind.Error())
}
