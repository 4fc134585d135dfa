package enrich

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gmaps-engine/internal/domain"
	"gmaps-engine/internal/ratelimit"
)

func TestExtractEmails(t *testing.T) {
	html := `<html><body>
<a href="mailto:Info@Klinik.com.tr?subject=Randevu">yaz</a>
<p>Destek: destek@klinik.com.tr, logo@2x.png</p>
<script>var x = "hidden@tracker.io";</script>
<a href="mailto:info@klinik.com.tr">tekrar</a>
</body></html>`
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)

	assert.Equal(t, []string{"info@klinik.com.tr", "destek@klinik.com.tr"}, ExtractEmails(doc))
}

func TestEnrichFallsBackToContactPage(t *testing.T) {
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><body>Hoş geldiniz</body></html>`))
		case "/iletisim":
			http.NotFound(w, r)
		case "/contact":
			_, _ = w.Write([]byte(`<html><body><a href="mailto:randevu@example.com">mail</a></body></html>`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	e := NewEmailEnricher(srv.Client(), ratelimit.NewHostLimiter(0, 1))
	p := &domain.Place{Contact: domain.Contact{Website: srv.URL + "/"}}
	require.NoError(t, e.Enrich(context.Background(), p))

	assert.Equal(t, []string{"randevu@example.com"}, p.Contact.Emails)
	assert.Equal(t, []string{"/", "/iletisim", "/contact"}, paths)
}

func TestEnrichNoWebsiteOrFailure(t *testing.T) {
	e := NewEmailEnricher(nil, ratelimit.NewHostLimiter(0, 1))
	p := &domain.Place{}
	assert.NoError(t, e.Enrich(context.Background(), p))
	assert.Nil(t, p.Contact.Emails)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e = NewEmailEnricher(srv.Client(), ratelimit.NewHostLimiter(0, 1))
	p = &domain.Place{Contact: domain.Contact{Website: srv.URL}}
	assert.Error(t, e.Enrich(context.Background(), p))
	assert.Nil(t, p.Contact.Emails)
}
