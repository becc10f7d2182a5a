package translate

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// dataImageSrc matches inline base64 image sources
var dataImageSrc = regexp.MustCompile(`src="(data:image/[^"]+)"`)

const placeholderFormat = "__IMG_PLACEHOLDER_%d__"

// ProtectImages swaps every inline data-URI image source for a placeholder so
// the model never sees the payload. It returns the protected HTML and the
// originals, indexed by placeholder number.
func ProtectImages(html string) (string, []string) {
	var images []string
	protected := dataImageSrc.ReplaceAllStringFunc(html, func(match string) string {
		sub := dataImageSrc.FindStringSubmatch(match)
		placeholder := fmt.Sprintf(placeholderFormat, len(images))
		images = append(images, sub[1])
		return `src="` + placeholder + `"`
	})
	return protected, images
}

// RestoreImages puts the original sources back in place of their placeholders
func RestoreImages(html string, images []string) string {
	if len(images) == 0 {
		return html
	}
	pairs := make([]string, 0, len(images)*2)
	for i, src := range images {
		pairs = append(pairs, fmt.Sprintf(placeholderFormat, i), src)
	}
	return strings.NewReplacer(pairs...).Replace(html)
}

// countImages returns the number of <img> elements in an HTML fragment
func countImages(html string) (int, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0, err
	}
	return doc.Find("img").Length(), nil
}
