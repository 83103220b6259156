// Package newsml parses NewsML news-industry XML documents and extracts the
// picture-news record fields spec.md §4.2 names.
package newsml

import "encoding/xml"

// node is the CDATA-aware catch-all shape used for NewsML leaf elements that
// may appear as plain text, as an attribute-bearing element with a Value
// attribute, or as an element with mixed text content (chardata).
type node struct {
	Text  string `xml:",chardata"`
	Value string `xml:"Value,attr"`
}

// text returns the node's best-effort string content per the CDATA extract
// rules in spec.md §4.2: trimmed chardata, else trimmed Value attribute,
// else "".
func (n node) text() string {
	if s := trimmed(n.Text); s != "" {
		return s
	}
	return trimmed(n.Value)
}

type newsML struct {
	XMLName  xml.Name `xml:"NewsML"`
	NewsItem newsItem `xml:"NewsItem"`
}

type newsItem struct {
	Identification    identification    `xml:"Identification"`
	NewsManagement    newsManagement    `xml:"NewsManagement"`
	NewsComponent     newsComponent     `xml:"NewsComponent"`
}

type identification struct {
	NewsIdentifier newsIdentifier `xml:"NewsIdentifier"`
}

type newsIdentifier struct {
	NewsItemID node `xml:"NewsItemId"`
	DateID     node `xml:"DateId"`
	ProviderID node `xml:"ProviderId"`
}

type newsManagement struct {
	Status               formalName `xml:"Status"`
	Urgency              formalName `xml:"Urgency"`
	FirstCreated          node      `xml:"FirstCreated"`
	ThisRevisionCreated   node      `xml:"ThisRevisionCreated"`
}

type formalName struct {
	FormalName string `xml:"FormalName,attr"`
}

// newsComponent models both a leaf picture component and an intermediate
// container: Role identifies the former, NewsComponent/NewsComponents the
// recursive descent into the latter.
type newsComponent struct {
	Role            formalName      `xml:"Role"`
	NewsComponent   []newsComponent `xml:"NewsComponent"`
	NewsLines       newsLines       `xml:"NewsLines"`
	AdminMetadata   adminMetadata   `xml:"AdministrativeMetadata"`
	DescMetadata    descMetadata    `xml:"DescriptiveMetadata"`
	RightsMetadata  rightsMetadata  `xml:"RightsMetadata"`
	ContentItem     []contentItem   `xml:"ContentItem"`
	Comment         node            `xml:"Comment"`
}

type newsLines struct {
	HeadLine      node   `xml:"HeadLine"`
	ByLine        node   `xml:"ByLine"`
	DateLine      node   `xml:"DateLine"`
	CreditLine    node   `xml:"CreditLine"`
	SlugLine      node   `xml:"SlugLine"`
	CopyrightLine node   `xml:"CopyrightLine"`
	KeywordLine   []node `xml:"KeywordLine"`
}

type adminMetadata struct {
	Property []property `xml:"Property"`
}

type descMetadata struct {
	Language     formalName   `xml:"Language"`
	SubjectCode  subjectCode  `xml:"SubjectCode"`
	Property     []property   `xml:"Property"`
}

type subjectCode struct {
	Subject formalName `xml:"Subject"`
}

type property struct {
	FormalName string     `xml:"FormalName,attr"`
	Value      string     `xml:"Value,attr"`
	Property   []property `xml:"Property"` // nested, e.g. Location.Property[] for Country/City
}

type rightsMetadata struct {
	UsageRights usageRights `xml:"UsageRights"`
}

type usageRights struct {
	UsageType    node       `xml:"UsageType"`
	RightsHolder node       `xml:"RightsHolder"`
	Property     []property `xml:"Property"`
}

type contentItem struct {
	MediaType      formalName          `xml:"MediaType"`
	Href           string              `xml:"Href,attr"`
	Characteristics characteristics    `xml:"Characteristics"`
}

type characteristics struct {
	SizeInBytes node       `xml:"SizeInBytes"`
	Property    []property `xml:"Property"`
}
