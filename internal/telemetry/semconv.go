// Package telemetry provides semantic conventions for spawnpool observability.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Semantic convention attribute keys for pool telemetry.
// Following OpenTelemetry naming conventions: namespace.attribute_name
const (
	AttrPoolName   = attribute.Key("pool.name")
	AttrObjectType = attribute.Key("object.type")
	AttrReused     = attribute.Key("pool.reused")
	AttrPersistent = attribute.Key("pool.persistent")
	AttrReason     = attribute.Key("reason")

	AttrEnvironment = attribute.Key("environment")
)

// Rejection reasons reported with pool.objects.rejected.
const (
	ReasonForeign = "foreign"
)

// PoolAttributes returns common attributes for pool metrics.
func PoolAttributes(environment, poolName, objectType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEnvironment.String(environment),
		AttrPoolName.String(poolName),
		AttrObjectType.String(objectType),
	}
}
