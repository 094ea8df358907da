package extractor

import (
	"regexp"
	"strings"
	"testing"

	"github.com/kuko798/appli.io/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRole(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		subject string
		body    string
		want    string
		ok      bool
	}{
		{"compound with seniority", "Your application for Senior Software Engineer", "", "Senior Software Engineer", true},
		{"compound in body", "Update", "We reviewed your application for the data scientist role.", "Data Scientist", true},
		{"hyphenated stack", "Application received", "Thanks for applying as a full-stack developer.", "Full-stack Developer", true},
		{"single with seniority", "Interview", "We'd like to talk about the senior consultant role.", "Senior Consultant", true},
		{"standalone in subject", "Intern position", "We liked your profile.", "Intern", true},
		{"standalone only in body", "Hello", "We are hiring an engineer.", "", false},
		{"nothing", "Thanks", "", "", false},
		{"pattern order beats position", "Product Manager interview", "We also have a Senior Software Engineer opening.", "Senior Software Engineer", true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ExtractRole(tc.subject, tc.body)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestRoleExtractorCustomCascade(t *testing.T) {
	t.Parallel()

	e := NewRoleExtractor(
		RolePattern{Tier: TierCompound, Pattern: regexp.MustCompile(`(?i)\bsite reliability engineer\b`)},
		RolePattern{Tier: TierStandalone, Pattern: regexp.MustCompile(`(?i)\bsre\b`)},
	)

	got, ok := e.Extract("Re: your SRE application", "")
	require.True(t, ok)
	assert.Equal(t, "Sre", got)

	got, ok = e.Extract("Hi", "The site reliability engineer loop is next week")
	require.True(t, ok)
	assert.Equal(t, "Site Reliability Engineer", got)

	_, ok = e.Extract("Hi", "sre team")
	assert.False(t, ok)
}

func TestTitleCase(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Director of the Engineering", TitleCase("director OF THE engineering"))
	assert.Equal(t, "The Lead", TitleCase("the lead"))
	assert.Equal(t, "Head of Data and Ai", TitleCase("  head   of data and ai "))
	assert.Equal(t, "", TitleCase(""))
}

func TestTierString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "compound", TierCompound.String())
	assert.Equal(t, "standalone", TierStandalone.String())
	assert.Equal(t, "unknown", Tier(9).String())
}

func TestExtractCompany(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"Google <recruiting@google.com>":       "Google",
		`"Acme, Inc." <jobs@acme.com>`:         "Acme",
		"Stripe LLC <talent@stripe.com>":       "Stripe",
		"Initech Corporation <hr@initech.com>": "Initech",
		"Globex Corp. <hr@globex.com>":         "Globex",
		"Zinc <hr@zinc.io>":                    "Zinc",
		"recruiting@google.com":                "google",
		"<noreply@mail.hire.com>":              "mail",
		"Hooli":                                "Hooli",
		"":                                     UnknownCompany,
		"   ":                                  UnknownCompany,
	}
	for from, want := range cases {
		assert.Equal(t, want, ExtractCompany(from), from)
	}
}

func page(title, head, body string) string {
	return "<html><head><title>" + title + "</title>" + head + "</head><body>" + body + "</body></html>"
}

func TestDetectApplicationATSTitles(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		url     string
		html    string
		company string
		role    string
	}{
		{
			name:    "greenhouse",
			url:     "https://boards.greenhouse.io/acme/jobs/1",
			html:    page("Backend Engineer at Acme - Greenhouse", "", "<p>Thank you for applying!</p>"),
			company: "Acme",
			role:    "Backend Engineer",
		},
		{
			name:    "lever",
			url:     "https://jobs.lever.co/globex/abc",
			html:    page("Globex - Data Analyst", "", "<div>Application submitted</div>"),
			company: "Globex",
			role:    "Data Analyst",
		},
		{
			name:    "ashby",
			url:     "https://jobs.ashbyhq.com/initech/xyz",
			html:    page("Platform Engineer - Initech", "", "<p>Your application received.</p>"),
			company: "Initech",
			role:    "Platform Engineer",
		},
		{
			name:    "open graph",
			url:     "https://careers.hooli.com/apply/done",
			html:    page("Done", `<meta property="og:title" content="Product Designer"><meta property="og:site_name" content="Hooli">`, "<p>We have received your application</p>"),
			company: "Hooli",
			role:    "Product Designer",
		},
		{
			name:    "h1 fallback",
			url:     "https://example.com/thanks",
			html:    page("Thanks", "", "<h1> Staff <b>Engineer</b> </h1><p>Successfully submitted</p>"),
			company: UnknownPageCompany,
			role:    "Staff Engineer",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			app, ok, err := DetectApplication(tc.url, strings.NewReader(tc.html))
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.company, app.Company)
			assert.Equal(t, tc.role, app.Role)
			assert.Equal(t, tc.url, app.URL)
			assert.Equal(t, model.StatusApplied, app.Status)
		})
	}
}

func TestDetectApplicationIgnoresPagesWithoutConfirmation(t *testing.T) {
	t.Parallel()

	_, ok, err := DetectApplication("https://boards.greenhouse.io/acme/jobs/1",
		strings.NewReader(page("Backend Engineer at Acme", "", "<p>Apply now</p><script>var s = 'application submitted'</script>")))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDetectApplicationDefaults(t *testing.T) {
	t.Parallel()

	app, ok, err := DetectApplication("https://boards.greenhouse.io/x", strings.NewReader(page("Greenhouse", "", "Thank you for applying")))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, UnknownPageCompany, app.Company)
	assert.Equal(t, UnknownPageRole, app.Role)
}
