package domain

// FormatCategory is the coarse routing tag that selects a converter.
type FormatCategory string

const (
	FormatSimpleText      FormatCategory = "simple_text"
	FormatExcel           FormatCategory = "excel_spreadsheet"
	FormatComplexDocument FormatCategory = "complex_document"
	FormatImage           FormatCategory = "image"
	FormatUnsupported     FormatCategory = "unsupported"
)

func (c FormatCategory) String() string {
	return string(c)
}
