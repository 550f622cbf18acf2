package webserver

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"formrunner/internal/dispatch"
	"formrunner/internal/field"
)

const openAPIVersion = "3.0.3"

// BuildOpenAPI describes POST / for the given descriptors: the form body it
// accepts and the Result it answers with in JSON mode.
func BuildOpenAPI(title string, fields []field.Descriptor) *openapi3.T {
	op := openapi3.NewOperation()
	op.OperationID = "submit"
	op.Summary = "Submit " + title
	op.RequestBody = &openapi3.RequestBodyRef{
		Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithContent(openapi3.NewContentWithSchema(formSchema(fields), []string{
				"multipart/form-data",
				"application/x-www-form-urlencoded",
			})),
	}
	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Processing result").
				WithJSONSchema(resultSchema()),
		}),
		openapi3.WithStatus(http.StatusBadRequest, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Missing or invalid values").
				WithJSONSchema(errorSchema()),
		}),
		openapi3.WithStatus(http.StatusFound, &openapi3.ResponseRef{
			Value: openapi3.NewResponse().
				WithDescription("Missing or invalid values, redirected back to the form"),
		}),
	)

	return &openapi3.T{
		OpenAPI: openAPIVersion,
		Info: &openapi3.Info{
			Title:   title,
			Version: "1.0.0",
		},
		Paths: openapi3.NewPaths(openapi3.WithPath("/", &openapi3.PathItem{Post: op})),
	}
}

func formSchema(fields []field.Descriptor) *openapi3.Schema {
	schema := openapi3.NewObjectSchema()

	for _, d := range fields {
		prop := propertySchema(d)
		prop.Title = d.Label()
		prop.Description = d.Help()

		schema.WithProperty(d.Name(), prop)

		if d.Required() {
			schema.Required = append(schema.Required, d.Name())
		}
	}

	return schema
}

func propertySchema(d field.Descriptor) *openapi3.Schema {
	switch f := d.(type) {
	case field.File:
		return openapi3.NewStringSchema().WithFormat("binary")

	case field.Number:
		s := openapi3.NewFloat64Schema()
		if f.Min != nil {
			s.WithMin(*f.Min)
		}

		if f.Max != nil {
			s.WithMax(*f.Max)
		}

		if f.Default != nil {
			s.WithDefault(*f.Default)
		}

		return s

	case field.Select:
		values := make([]any, 0, len(f.Choices))
		for _, c := range f.Choices {
			values = append(values, c.Value)
		}

		s := openapi3.NewStringSchema().WithEnum(values...)
		if f.Default != "" {
			s.WithDefault(f.Default)
		}

		return s

	case field.Checkbox:
		return openapi3.NewBoolSchema().WithDefault(f.Default)

	case field.Text:
		s := openapi3.NewStringSchema()
		if f.Default != "" {
			s.WithDefault(f.Default)
		}

		return s
	}

	return openapi3.NewStringSchema()
}

func resultSchema() *openapi3.Schema {
	schema := openapi3.NewObjectSchema().
		WithProperty("status", openapi3.NewStringSchema().WithEnum(
			string(dispatch.StatusSuccess),
			string(dispatch.StatusError),
		)).
		WithProperty("output", openapi3.NewStringSchema()).
		WithProperty("data", openapi3.NewObjectSchema())
	schema.Required = []string{"status", "output", "data"}

	return schema
}

func errorSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("type", openapi3.NewStringSchema()).
		WithProperty("code", openapi3.NewStringSchema()).
		WithProperty("title", openapi3.NewStringSchema()).
		WithProperty("description", openapi3.NewStringSchema()).
		WithProperty("details", openapi3.NewStringSchema()).
		WithProperty("field", openapi3.NewStringSchema()).
		WithProperty("suggestions", openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))
}
