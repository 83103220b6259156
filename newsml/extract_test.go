package newsml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleXML = `<NewsML>
  <NewsItem>
    <Identification>
      <NewsIdentifier>
        <NewsItemId>item-1</NewsItemId>
        <DateId>2024-05-01</DateId>
        <ProviderId>prov-9</ProviderId>
      </NewsIdentifier>
    </Identification>
    <NewsManagement>
      <Status FormalName="Usable"/>
      <Urgency FormalName="3"/>
      <FirstCreated>2024-05-01T10:00:00</FirstCreated>
      <ThisRevisionCreated>2024-05-01T10:05:00</ThisRevisionCreated>
    </NewsManagement>
    <NewsComponent>
      <Role FormalName="WRAPPER"/>
      <NewsComponent>
        <Role FormalName="PICTURE"/>
        <NewsLines>
          <HeadLine>  A headline  </HeadLine>
          <ByLine>Jane Doe</ByLine>
          <DateLine>London</DateLine>
          <CreditLine>Reuters</CreditLine>
          <SlugLine>slug-1</SlugLine>
          <CopyrightLine>(c) Reuters</CopyrightLine>
          <KeywordLine>sports</KeywordLine>
          <KeywordLine>  </KeywordLine>
          <KeywordLine>olympics</KeywordLine>
        </NewsLines>
        <AdministrativeMetadata>
          <Property FormalName="Edition" Value="Europe"/>
          <Property FormalName="PageNumber" Value="A1"/>
        </AdministrativeMetadata>
        <DescriptiveMetadata>
          <Language FormalName="en"/>
          <SubjectCode><Subject FormalName="sport"/></SubjectCode>
          <Property FormalName="Processed" Value="Yes"/>
          <Property FormalName="Location" Value="loc">
            <Property FormalName="Country" Value="UK"/>
            <Property FormalName="City" Value="London"/>
          </Property>
        </DescriptiveMetadata>
        <RightsMetadata>
          <UsageRights>
            <UsageType>Editorial</UsageType>
            <RightsHolder>Reuters</RightsHolder>
          </UsageRights>
        </RightsMetadata>
        <Comment>free text comment</Comment>
        <ContentItem Href="2024/05/london/01/photo.jpg">
          <MediaType FormalName="HIGHRES"/>
          <Characteristics>
            <SizeInBytes>123456</SizeInBytes>
            <Property FormalName="Width" Value="1024"/>
            <Property FormalName="Height" Value="768"/>
          </Characteristics>
        </ContentItem>
      </NewsComponent>
    </NewsComponent>
  </NewsItem>
</NewsML>`

func TestExtract_HappyPath(t *testing.T) {
	rec, err := Extract([]byte(sampleXML), "/data/london/2024/05/01/story.xml")
	require.NoError(t, err)

	assert.Equal(t, "item-1", rec.NewsItemID)
	assert.Equal(t, "2024-05-01", rec.DateID)
	assert.Equal(t, "prov-9", rec.ProviderID)
	assert.Equal(t, "Usable", rec.Status)
	assert.Equal(t, "A headline", rec.Headline, "chardata must be trimmed")
	assert.Equal(t, "Jane Doe", rec.Byline)
	assert.Equal(t, "Reuters", rec.Creditline)
	assert.Equal(t, "(c) Reuters", rec.CopyrightLine)
	assert.Equal(t, "sports, olympics", rec.Keywords, "blank keyword lines must be skipped")
	assert.Equal(t, "free text comment", rec.CommentData)
	assert.Equal(t, "Europe", rec.Edition)
	assert.Equal(t, "A1", rec.PageNumber)
	assert.Equal(t, "en", rec.Language)
	assert.Equal(t, "sport", rec.Subject)
	assert.Equal(t, "Yes", rec.Processed)
	assert.Equal(t, "UK", rec.Country)
	assert.Equal(t, "London", rec.CityMeta)
	assert.Equal(t, "Editorial", rec.UsageType)
	assert.Equal(t, "Reuters", rec.RightsHolder)
	assert.Equal(t, "2024/05/london/01/photo.jpg", rec.ImageHref)
	assert.Equal(t, "123456", rec.ImageSize)
	assert.Equal(t, "1024", rec.ImageWidth)
	assert.Equal(t, "768", rec.ImageHeight)
}

func TestExtract_ProvenanceFromPath(t *testing.T) {
	rec, err := Extract([]byte(sampleXML), "/data/london/2024/05/01/story.xml")
	require.NoError(t, err)
	assert.Equal(t, "london", rec.City)
	assert.Equal(t, "2024", rec.Year)
	assert.Equal(t, "05", rec.Month)
}

func TestExtract_ProvenanceFromURL(t *testing.T) {
	rec, err := Extract([]byte(sampleXML), "https://example.com/paris/2023/11/story.xml")
	require.NoError(t, err)
	assert.Equal(t, "paris", rec.City)
	assert.Equal(t, "2023", rec.Year)
	assert.Equal(t, "11", rec.Month)
}

func TestExtract_ProvenanceMissingYearSegment(t *testing.T) {
	rec, err := Extract([]byte(sampleXML), "/data/story.xml")
	require.NoError(t, err)
	assert.Empty(t, rec.City)
	assert.Empty(t, rec.Year)
	assert.Empty(t, rec.Month)
}

func TestExtract_MalformedXML(t *testing.T) {
	_, err := Extract([]byte("<NotNewsML></NotNewsML>"), "/x.xml")
	assert.ErrorIs(t, err, ErrMalformedXML)

	_, err = Extract([]byte("not even xml"), "/x.xml")
	assert.ErrorIs(t, err, ErrMalformedXML)
}

func TestExtract_MissingPictureComponent(t *testing.T) {
	xmlDoc := `<NewsML><NewsItem><NewsComponent><Role FormalName="WRAPPER"/></NewsComponent></NewsItem></NewsML>`
	_, err := Extract([]byte(xmlDoc), "/x.xml")
	assert.ErrorIs(t, err, ErrMissingPictureComponent)
}

func TestFindPictureComponent_RecursesNestedWrappers(t *testing.T) {
	root := newsComponent{
		Role: formalName{FormalName: "WRAPPER"},
		NewsComponent: []newsComponent{
			{Role: formalName{FormalName: "WRAPPER"}, NewsComponent: []newsComponent{
				{Role: formalName{FormalName: "PICTURE"}},
			}},
		},
	}
	found, ok := findPictureComponent(&root)
	require.True(t, ok)
	assert.True(t, found.Role.FormalName == "PICTURE")
}

func TestNodeText_PrefersChardataOverValueAttr(t *testing.T) {
	n := node{Text: "  from text  ", Value: "from attr"}
	assert.Equal(t, "from text", n.text())

	n2 := node{Text: "   ", Value: "from attr"}
	assert.Equal(t, "from attr", n2.text())

	n3 := node{}
	assert.Equal(t, "", n3.text())
}
