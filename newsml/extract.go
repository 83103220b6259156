package newsml

import (
	"encoding/xml"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"newsxtract/pipeline"
)

// Sentinel errors per spec.md §7 — per-item extraction failures.
var (
	ErrMalformedXML           = errors.New("malformed xml: missing NewsML/NewsItem root")
	ErrMissingPictureComponent = errors.New("no NewsComponent with Role.FormalName == PICTURE")
)

var yearSegment = regexp.MustCompile(`^\d{4}$`)
var monthSegment = regexp.MustCompile(`^\d{2}$`)

// Extract parses one XML document and produces its ExtractedRecord.
// origin is the document's local path or remote URL, used to derive
// city/year/month provenance (spec.md §4.2).
func Extract(xmlBytes []byte, origin string) (*pipeline.ExtractedRecord, error) {
	var doc newsML
	if err := xml.Unmarshal(xmlBytes, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedXML, err)
	}
	var probe struct {
		NewsItem *struct{} `xml:"NewsItem"`
	}
	if doc.XMLName.Local != "NewsML" || xml.Unmarshal(xmlBytes, &probe) != nil || probe.NewsItem == nil {
		return nil, ErrMalformedXML
	}

	picture, ok := findPictureComponent(&doc.NewsItem.NewsComponent)
	if !ok {
		return nil, ErrMissingPictureComponent
	}

	rec := &pipeline.ExtractedRecord{
		XMLPath: origin,

		NewsItemID: trimmed(doc.NewsItem.Identification.NewsIdentifier.NewsItemID.text()),
		DateID:     trimmed(doc.NewsItem.Identification.NewsIdentifier.DateID.text()),
		ProviderID: trimmed(doc.NewsItem.Identification.NewsIdentifier.ProviderID.text()),

		Status:       trimmed(doc.NewsItem.NewsManagement.Status.FormalName),
		Urgency:      trimmed(doc.NewsItem.NewsManagement.Urgency.FormalName),
		CreationDate: trimmed(doc.NewsItem.NewsManagement.FirstCreated.text()),
		RevisionDate: trimmed(doc.NewsItem.NewsManagement.ThisRevisionCreated.text()),

		Headline:      trimmed(picture.NewsLines.HeadLine.text()),
		Byline:        trimmed(picture.NewsLines.ByLine.text()),
		Dateline:      trimmed(picture.NewsLines.DateLine.text()),
		Creditline:    trimmed(picture.NewsLines.CreditLine.text()),
		Slugline:      trimmed(picture.NewsLines.SlugLine.text()),
		CopyrightLine: trimmed(picture.NewsLines.CopyrightLine.text()),
		Keywords:      joinKeywords(picture.NewsLines.KeywordLine),

		CommentData: trimmed(picture.Comment.text()),

		Language: trimmed(picture.DescMetadata.Language.FormalName),
		Subject:  trimmed(picture.DescMetadata.SubjectCode.Subject.FormalName),
	}

	for _, p := range picture.AdminMetadata.Property {
		switch p.FormalName {
		case "Edition":
			rec.Edition = trimmed(p.Value)
		case "Location":
			rec.Location = trimmed(p.Value)
		case "PageNumber":
			rec.PageNumber = trimmed(p.Value)
		}
	}

	for _, p := range picture.DescMetadata.Property {
		switch p.FormalName {
		case "Processed":
			rec.Processed = trimmed(p.Value)
		case "Published":
			rec.Published = trimmed(p.Value)
		case "Location":
			for _, nested := range p.Property {
				switch nested.FormalName {
				case "Country":
					rec.Country = trimmed(nested.Value)
				case "City":
					rec.CityMeta = trimmed(nested.Value)
				}
			}
		}
	}

	rec.UsageType = trimmed(picture.RightsMetadata.UsageRights.UsageType.text())
	rec.RightsHolder = trimmed(picture.RightsMetadata.UsageRights.RightsHolder.text())
	if rec.CopyrightLine == "" {
		for _, p := range picture.RightsMetadata.UsageRights.Property {
			if p.FormalName == "CopyrightNotice" || p.FormalName == "Copyright" {
				rec.CopyrightLine = trimmed(p.Value)
				break
			}
		}
	}

	if item, ok := findImageContentItem(picture); ok {
		rec.ImageHref = trimmed(item.Href)
		rec.ImageSize = trimmed(item.Characteristics.SizeInBytes.text())
		for _, p := range item.Characteristics.Property {
			switch strings.ToLower(p.FormalName) {
			case "width":
				rec.ImageWidth = trimmed(p.Value)
			case "height":
				rec.ImageHeight = trimmed(p.Value)
			}
		}
	}

	rec.City, rec.Year, rec.Month = deriveProvenance(origin)

	return rec, nil
}

// findPictureComponent performs recursive descent for the first NewsComponent
// whose Role.FormalName == "PICTURE" (spec.md §4.2 "Picture component").
func findPictureComponent(c *newsComponent) (*newsComponent, bool) {
	if c.Role.FormalName == "PICTURE" {
		return c, true
	}
	for i := range c.NewsComponent {
		if found, ok := findPictureComponent(&c.NewsComponent[i]); ok {
			return found, true
		}
	}
	return nil, false
}

// findImageContentItem selects the first ContentItem whose MediaType is
// HIGHRES or Picture (spec.md §4.2).
func findImageContentItem(c *newsComponent) (*contentItem, bool) {
	for i := range c.ContentItem {
		mt := c.ContentItem[i].MediaType.FormalName
		if strings.EqualFold(mt, "HIGHRES") || strings.EqualFold(mt, "Picture") {
			return &c.ContentItem[i], true
		}
	}
	return nil, false
}

func joinKeywords(lines []node) string {
	var parts []string
	for _, l := range lines {
		if s := trimmed(l.text()); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}

// deriveProvenance locates city/year/month from the document's path or URL
// segments (spec.md §4.2): the first segment matching ^\d{4}$ is the year;
// the segment before it is city; the segment after it, if ^\d{2}$, is month.
func deriveProvenance(origin string) (city, year, month string) {
	var segments []string
	if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
		segments = strings.Split(strings.Trim(trimURLPath(origin), "/"), "/")
	} else {
		segments = strings.Split(filepath.ToSlash(origin), "/")
	}

	for i, seg := range segments {
		if yearSegment.MatchString(seg) {
			year = seg
			if i > 0 {
				city = segments[i-1]
			}
			if i+1 < len(segments) && monthSegment.MatchString(segments[i+1]) {
				month = segments[i+1]
			}
			return city, year, month
		}
	}
	return "", "", ""
}

func trimURLPath(rawURL string) string {
	idx := strings.Index(rawURL, "://")
	if idx == -1 {
		return rawURL
	}
	rest := rawURL[idx+3:]
	slash := strings.Index(rest, "/")
	if slash == -1 {
		return ""
	}
	return rest[slash:]
}
