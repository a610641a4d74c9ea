// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/biblio-gateway/internal/xmltree"
)

const sampleResponse = `<response>
	<status><code>0</code><message>OK</message></status>
	<result>
		<total>2</total>
		<items>
			<item>
				<id>ART-001</id>
				<title>Graph Neural Networks</title>
				<authors><author>Kim</author><author>Lee</author></authors>
				<publisher>KISS</publisher>
				<pub_date>2021-03-15</pub_date>
				<url>https://example.org/art-001</url>
				<keywords><keyword>gnn</keyword><keyword>ml</keyword></keywords>
				<abstract>We study graphs.</abstract>
			</item>
			<item>
				<title>Untitled Note</title>
				<author>Park</author>
				<issue_info>Vol.3 No.1 (2019.06)</issue_info>
			</item>
		</items>
	</result>
</response>`

func parseSample(t *testing.T) xmltree.Doc {
	t.Helper()
	doc, err := xmltree.Parse(sampleResponse)
	require.NoError(t, err)
	return doc
}

func TestNormalizeItems(t *testing.T) {
	result := Normalize(parseSample(t), "article")
	require.Len(t, result.Items, 2)

	first := result.Items[0]
	assert.Equal(t, "ART-001", first.ID)
	assert.Equal(t, "Graph Neural Networks", first.Title)
	assert.Equal(t, []string{"Kim", "Lee"}, first.Authors)
	assert.Equal(t, "2021", first.Year)
	assert.Equal(t, "KISS", first.Publisher)
	assert.Equal(t, "https://example.org/art-001", first.URL)
	assert.Equal(t, []string{"gnn", "ml"}, first.Keywords)
	require.NotNil(t, first.Abstract)
	assert.Equal(t, "We study graphs.", *first.Abstract)
	assert.Equal(t, "Graph Neural Networks", first.Raw["title"])

	second := result.Items[1]
	assert.Equal(t, []string{"Park"}, second.Authors)
	assert.Equal(t, "2019", second.Year, "year must fall back to the issue field")
	assert.Nil(t, second.Abstract, "absent abstract must stay nil")
	assert.Empty(t, second.Keywords)
	assert.NotNil(t, second.Keywords, "keywords default to an empty slice")
	assert.Len(t, second.ID, 16, "missing identifiers fall back to a content fingerprint")
}

func TestNormalizeMeta(t *testing.T) {
	result := Normalize(parseSample(t), "article")
	require.NotNil(t, result.Meta.Total)
	assert.Equal(t, 2, *result.Meta.Total)
	require.NotNil(t, result.Meta.Status)
	assert.Equal(t, "0", result.Meta.Status.Code)
	assert.Equal(t, "OK", result.Meta.Status.Message)
}

func TestNormalizeEmptyTree(t *testing.T) {
	result := Normalize(xmltree.Doc{}, "article")
	assert.Empty(t, result.Items)
	assert.NotNil(t, result.Items)
	assert.Nil(t, result.Meta.Total)
	assert.Nil(t, result.Meta.Status)
}

func TestNormalizeAuthorObjects(t *testing.T) {
	doc, err := xmltree.Parse(`<items><item>
		<title>T</title>
		<authors><author><name>Choi</name></author><author><name>Jung</name></author></authors>
	</item></items>`)
	require.NoError(t, err)

	result := Normalize(doc, "article")
	require.Len(t, result.Items, 1)
	assert.Equal(t, []string{"Choi", "Jung"}, result.Items[0].Authors)
}

func TestNormalizePublisherObject(t *testing.T) {
	doc, err := xmltree.Parse(`<items><item>
		<title>T</title>
		<publisher><name>Hanbit Press</name></publisher>
	</item></items>`)
	require.NoError(t, err)

	result := Normalize(doc, "article")
	require.Len(t, result.Items, 1)
	assert.Equal(t, "Hanbit Press", result.Items[0].Publisher)
}

// --- DeriveID ---

func TestDeriveIDDeterministic(t *testing.T) {
	item := xmltree.Doc{
		"title":     "Stable Paper",
		"author":    []any{"Kim"},
		"pub_date":  "2020-01-01",
		"publisher": "ACM",
	}
	a := DeriveID(item, "article")
	b := DeriveID(item, "article")
	assert.Equal(t, a, b)
	assert.Len(t, a, 16)
}

func TestDeriveIDPrecedence(t *testing.T) {
	base := xmltree.Doc{"title": "T", "doi": "10.1234/x"}

	assert.Equal(t, "10.1234/x", DeriveID(base, "article"), "DOI beats fingerprint")

	base["id"] = "NATIVE-9"
	assert.Equal(t, "NATIVE-9", DeriveID(base, "article"), "native id beats DOI")

	base["article_id"] = "ART-42"
	assert.Equal(t, "ART-42", DeriveID(base, "article"), "target-specific id beats generic id")
}

func TestDeriveIDSensitiveToEachSeedField(t *testing.T) {
	base := func() xmltree.Doc {
		return xmltree.Doc{
			"title":     "Stable Paper",
			"author":    []any{"Kim", "Lee"},
			"pub_date":  "2020-01-01",
			"publisher": "ACM",
		}
	}
	orig := DeriveID(base(), "")

	mutations := map[string]xmltree.Doc{
		"title":     {"title": "Other Paper"},
		"authors":   {"author": []any{"Kim"}},
		"year":      {"pub_date": "2021-01-01"},
		"publisher": {"publisher": "IEEE"},
	}
	for field, mut := range mutations {
		item := base()
		for k, v := range mut {
			item[k] = v
		}
		assert.NotEqual(t, orig, DeriveID(item, ""), "changing %s must change the fingerprint", field)
	}
}
