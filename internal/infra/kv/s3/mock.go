package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// NewMockForTests returns a Store whose client talks to an in-process fake
// bucket. Only GetObject, PutObject, DeleteObject and ListObjectsV2 are
// served.
func NewMockForTests(prefix string) *Store {
	bucket := &fakeBucket{objects: make(map[string][]byte)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket", prefix: prefix}
}

type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
}

type listResult struct {
	XMLName     xml.Name       `xml:"ListBucketResult"`
	IsTruncated bool           `xml:"IsTruncated"`
	Contents    []listedObject `xml:"Contents"`
}

type listedObject struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Path style: /<bucket>/<key>.
	_, key, _ := strings.Cut(strings.TrimPrefix(req.URL.Path, "/"), "/")
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req.URL.Query().Get("prefix"))
	case req.Method == http.MethodGet:
		return b.get(key), nil
	case req.Method == http.MethodPut:
		return b.put(key, req.Body)
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return xmlResponse(http.StatusNoContent, nil), nil
	}
	return xmlResponse(http.StatusNotImplemented, nil), nil
}

func (b *fakeBucket) list(prefix string) (*http.Response, error) {
	out := listResult{}
	for k, v := range b.objects {
		if strings.HasPrefix(k, prefix) {
			out.Contents = append(out.Contents, listedObject{Key: k, Size: len(v), LastModified: "2024-01-01T00:00:00Z"})
		}
	}
	sort.Slice(out.Contents, func(i, j int) bool { return out.Contents[i].Key < out.Contents[j].Key })
	body, err := xml.Marshal(out)
	if err != nil {
		return nil, err
	}
	return xmlResponse(http.StatusOK, body), nil
}

func (b *fakeBucket) get(key string) *http.Response {
	body, ok := b.objects[key]
	if !ok {
		return xmlResponse(http.StatusNotFound, []byte(`<Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
	}
	return &http.Response{
		StatusCode: http.StatusOK,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header: http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Content-Type":   {"application/json"},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		},
	}
}

func (b *fakeBucket) put(key string, r io.Reader) (*http.Response, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if plain, ok := unchunk(body); ok {
		body = plain
	}
	b.objects[key] = body
	resp := xmlResponse(http.StatusOK, nil)
	resp.Header.Set("ETag", `"mock"`)
	return resp, nil
}

func xmlResponse(status int, body []byte) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewReader(body)),
		Header:     http.Header{"Content-Type": {"application/xml"}},
	}
}

// unchunk strips a single-chunk aws-chunked frame: <hex size>\r\n<data>\r\n0\r\n...
func unchunk(b []byte) ([]byte, bool) {
	head, rest, ok := bytes.Cut(b, []byte("\r\n"))
	if !ok {
		return nil, false
	}
	size, err := strconv.ParseInt(string(bytes.TrimSpace(bytes.SplitN(head, []byte(";"), 2)[0])), 16, 64)
	if err != nil || size < 0 || int64(len(rest)) < size+2 {
		return nil, false
	}
	if !bytes.HasPrefix(rest[size:], []byte("\r\n0")) {
		return nil, false
	}
	return rest[:size], true
}
