package companieshouse

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Wire literals of the advanced search resource.
const (
	kindSearch  = "search#advanced-search"
	kindCompany = "search-results#company"
	dateLayout  = "2006-01-02"
)

// ReservedQueryParams are controlled by the client and rejected in caller queries.
var ReservedQueryParams = []string{"size", "start_index"}

//go:embed sic_descriptions.yaml
var sicDescriptionsYAML []byte

var sicDescriptions = mustLoadSICDescriptions(sicDescriptionsYAML)

func mustLoadSICDescriptions(data []byte) map[string]string {
	var doc struct {
		SICDescriptions map[string]string `yaml:"sic_descriptions"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		panic(fmt.Sprintf("companieshouse: parse sic descriptions: %v", err))
	}
	return doc.SICDescriptions
}

// SICDescription returns the description of a SIC code, if known.
func SICDescription(code string) (string, bool) {
	d, ok := sicDescriptions[code]
	return d, ok
}

// Address is a company's registered office address.
type Address struct {
	AddressLine1 string `json:"address_line_1,omitempty"`
	AddressLine2 string `json:"address_line_2,omitempty"`
	Locality     string `json:"locality,omitempty"`
	PostalCode   string `json:"postal_code,omitempty"`
	Region       string `json:"region,omitempty"`
	Country      string `json:"country,omitempty"`
}

// Links holds related resource paths.
type Links struct {
	CompanyProfile string `json:"company_profile"`
}

// Company is one advanced search result as returned by the gateway.
// SICCodes maps each code to its description, or null when unknown.
type Company struct {
	CompanyName             string             `json:"company_name"`
	CompanyNumber           string             `json:"company_number"`
	CompanyStatus           string             `json:"company_status"`
	CompanyType             string             `json:"company_type"`
	CompanySubtype          string             `json:"company_subtype,omitempty"`
	Links                   *Links             `json:"links,omitempty"`
	DateOfCessation         string             `json:"date_of_cessation,omitempty"`
	DateOfCreation          string             `json:"date_of_creation"`
	SICCodes                map[string]*string `json:"sic_codes,omitempty"`
	RegisteredOfficeAddress *Address           `json:"registered_office_address,omitempty"`
}

// searchResult is the upstream item. Required fields are pointers so that
// absence can be told apart from empty values.
type searchResult struct {
	CompanyName    *string `json:"company_name"`
	CompanyNumber  *string `json:"company_number"`
	CompanyStatus  *string `json:"company_status"`
	CompanyType    *string `json:"company_type"`
	CompanySubtype string  `json:"company_subtype"`
	Kind           *string `json:"kind"`
	Links          *struct {
		CompanyProfile *string `json:"company_profile"`
	} `json:"links"`
	DateOfCessation         *string  `json:"date_of_cessation"`
	DateOfCreation          *string  `json:"date_of_creation"`
	SICCodes                []string `json:"sic_codes"`
	RegisteredOfficeAddress *Address `json:"registered_office_address"`
}

type searchResponse struct {
	ETag  string          `json:"etag"`
	Hits  *int            `json:"hits"`
	Kind  *string         `json:"kind"`
	Items *[]searchResult `json:"items"`
}

// decodeSearchPage parses and validates one upstream page.
// Validation failures are returned as "path: message" strings.
func decodeSearchPage(body []byte) ([]searchResult, int, []string) {
	var page searchResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, 0, []string{decodeErrorMessage(err)}
	}

	var problems []string
	if page.Hits == nil {
		problems = append(problems, "hits: Required")
	}
	problems = appendLiteral(problems, "kind", page.Kind, kindSearch)
	if page.Items == nil {
		problems = append(problems, "items: Required")
	} else {
		for i, item := range *page.Items {
			problems = append(problems, item.validate(fmt.Sprintf("items.%d", i))...)
		}
	}

	if len(problems) > 0 {
		return nil, 0, problems
	}
	return *page.Items, *page.Hits, nil
}

func (r searchResult) validate(path string) []string {
	var problems []string
	required := []struct {
		field string
		value *string
	}{
		{"company_name", r.CompanyName},
		{"company_number", r.CompanyNumber},
		{"company_status", r.CompanyStatus},
		{"company_type", r.CompanyType},
	}
	for _, f := range required {
		if f.value == nil {
			problems = append(problems, path+"."+f.field+": Required")
		}
	}

	problems = appendLiteral(problems, path+".kind", r.Kind, kindCompany)

	if r.Links != nil && r.Links.CompanyProfile == nil {
		problems = append(problems, path+".links.company_profile: Required")
	}

	if r.DateOfCreation == nil {
		problems = append(problems, path+".date_of_creation: Required")
	} else if !validDate(*r.DateOfCreation) {
		problems = append(problems, path+".date_of_creation: Invalid date")
	}
	if r.DateOfCessation != nil && !validDate(*r.DateOfCessation) {
		problems = append(problems, path+".date_of_cessation: Invalid date")
	}

	return problems
}

// toCompany drops the kind literal and expands SIC codes.
func (r searchResult) toCompany() Company {
	c := Company{
		CompanyName:             *r.CompanyName,
		CompanyNumber:           *r.CompanyNumber,
		CompanyStatus:           *r.CompanyStatus,
		CompanyType:             *r.CompanyType,
		CompanySubtype:          r.CompanySubtype,
		DateOfCreation:          *r.DateOfCreation,
		RegisteredOfficeAddress: r.RegisteredOfficeAddress,
	}
	if r.DateOfCessation != nil {
		c.DateOfCessation = *r.DateOfCessation
	}
	if r.Links != nil {
		c.Links = &Links{CompanyProfile: *r.Links.CompanyProfile}
	}
	if r.SICCodes != nil {
		c.SICCodes = make(map[string]*string, len(r.SICCodes))
		for _, code := range r.SICCodes {
			if d, ok := SICDescription(code); ok {
				c.SICCodes[code] = &d
			} else {
				c.SICCodes[code] = nil
			}
		}
	}
	return c
}

func appendLiteral(problems []string, path string, got *string, want string) []string {
	switch {
	case got == nil:
		return append(problems, path+": Required")
	case *got != want:
		return append(problems, fmt.Sprintf("%s: Invalid literal value, expected %q", path, want))
	}
	return problems
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}

func decodeErrorMessage(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return fmt.Sprintf("%s: Expected %s, received %s", typeErr.Field, typeErr.Type, typeErr.Value)
	}
	return "body: " + err.Error()
}

// ValidateQuery reports caller query parameters the client controls itself.
// Problems are keyed by parameter name, in sorted order.
func ValidateQuery(query url.Values) []FieldError {
	var problems []FieldError
	for _, name := range ReservedQueryParams {
		if _, ok := query[name]; ok {
			problems = append(problems, FieldError{Path: name, Message: "Expected never, received string"})
		}
	}
	sort.Slice(problems, func(i, j int) bool { return problems[i].Path < problems[j].Path })
	return problems
}

// FieldError is a single rejected request field.
type FieldError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}
