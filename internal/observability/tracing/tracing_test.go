package tracing

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesFiltersUnknownKeys(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/api/v1/indicators/:code"),
		attribute.String("user.email", "someone@example.com"),
		attribute.String("request_id", strings.Repeat("x", 400)),
	)

	assert.Len(t, attrs, 2)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
	assert.Len(t, attrs[1].Value.AsString(), maxAttributeLength)
}

func TestSafeErrorKeepsFirstLine(t *testing.T) {
	assert.Nil(t, SafeError(nil))
	err := SafeError(errors.New("load failed\nsheet row 4: secret"))
	assert.EqualError(t, err, "load failed")
}

func TestSamplingRatioBounds(t *testing.T) {
	assert.Equal(t, 0.0, samplingRatio(-1))
	assert.Equal(t, 1.0, samplingRatio(3))
	assert.Equal(t, 0.25, samplingRatio(0.25))
}

func TestRouteAttributes(t *testing.T) {
	attrs := RouteAttributes("/api/v1/indicators/:code", "EMP", "")
	assert.Equal(t, []attribute.KeyValue{attribute.String("indicator.code", "EMP")}, attrs)

	attrs = RouteAttributes("/api/v1/centers/:code", "C1", "")
	assert.Equal(t, []attribute.KeyValue{attribute.String("center.code", "C1")}, attrs)

	attrs = RouteAttributes("/api/v1/reports/pdf", "", "C2")
	assert.Equal(t, []attribute.KeyValue{
		attribute.String("report.format", "pdf"),
		attribute.String("center.code", "C2"),
	}, attrs)

	assert.Empty(t, RouteAttributes("/api/v1/dashboard/summary", "", ""))
	assert.Len(t, SafeAttributes(RouteAttributes("/api/v1/reports/xlsx", "", "C1")...), 2)
}
