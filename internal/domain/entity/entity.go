// Package entity classifies every persisted entity type as system-scoped or
// tenant-scoped. The registry is closed: a type not listed as system-scoped
// is tenant-scoped.
package entity

import (
	"fmt"

	"github.com/Strob0t/LabCore/internal/domain"
)

// Scope is the isolation class of an entity. The zero value is TenantScoped
// so an entity with a missing descriptor over-isolates.
type Scope uint8

const (
	TenantScoped Scope = iota
	SystemScoped
)

func (s Scope) String() string {
	if s == SystemScoped {
		return "system"
	}
	return "tenant"
}

// Entity enumerates the persisted types. Append new values before
// entityCount and give them a descriptor below.
type Entity uint8

const (
	entityInvalid Entity = iota

	// System-scoped.
	Tenant
	User
	Membership
	CatalogTemplate

	// Tenant-scoped.
	Client
	Case
	ServiceOrder
	Invoice
	Payment
	Product
	InventoryMovement
	Equipment
	EquipmentLog
	CalendarEvent
	Delivery
	AuditLog

	entityCount
)

type descriptor struct {
	name  string
	table string
	scope Scope
}

// registry is indexed by Entity. Its length is fixed by entityCount, so an
// unlisted constant yields an empty descriptor that Valid rejects.
var registry = [entityCount]descriptor{
	Tenant:          {name: "Tenant", table: "tenants", scope: SystemScoped},
	User:            {name: "User", table: "users", scope: SystemScoped},
	Membership:      {name: "Membership", table: "memberships", scope: SystemScoped},
	CatalogTemplate: {name: "CatalogTemplate", table: "catalog_templates", scope: SystemScoped},

	Client:            {name: "Client", table: "clients"},
	Case:              {name: "Case", table: "cases"},
	ServiceOrder:      {name: "ServiceOrder", table: "service_orders"},
	Invoice:           {name: "Invoice", table: "invoices"},
	Payment:           {name: "Payment", table: "payments"},
	Product:           {name: "Product", table: "products"},
	InventoryMovement: {name: "InventoryMovement", table: "inventory_movements"},
	Equipment:         {name: "Equipment", table: "equipment"},
	EquipmentLog:      {name: "EquipmentLog", table: "equipment_logs"},
	CalendarEvent:     {name: "CalendarEvent", table: "calendar_events"},
	Delivery:          {name: "Delivery", table: "deliveries"},
	AuditLog:          {name: "AuditLog", table: "audit_logs"},
}

var byName = func() map[string]Entity {
	m := make(map[string]Entity, len(registry))
	for i := range registry {
		if e := Entity(i); e.Valid() {
			m[registry[i].name] = e
		}
	}
	return m
}()

// Valid reports whether e has a registry entry.
func (e Entity) Valid() bool {
	return e > entityInvalid && e < entityCount && registry[e].table != ""
}

// Name returns the entity's type name, or a placeholder for invalid values.
func (e Entity) Name() string {
	if !e.Valid() {
		return fmt.Sprintf("Entity(%d)", uint8(e))
	}
	return registry[e].name
}

func (e Entity) String() string { return e.Name() }

// Table returns the backing table name, or "" for invalid values.
func (e Entity) Table() string {
	if !e.Valid() {
		return ""
	}
	return registry[e].table
}

// Scope returns the isolation class. Invalid values are tenant-scoped.
func (e Entity) Scope() Scope {
	if !e.Valid() {
		return TenantScoped
	}
	return registry[e].scope
}

// IsSystemScoped reports whether e is exempt from tenant filtering.
func (e Entity) IsSystemScoped() bool {
	return e.Scope() == SystemScoped
}

// IsSystemScoped reports whether the named entity is on the system-scoped
// allow-list. Unknown names are tenant-scoped.
func IsSystemScoped(name string) bool {
	e, ok := byName[name]
	return ok && e.IsSystemScoped()
}

// Parse maps an entity name to its Entity value.
func Parse(name string) (Entity, error) {
	e, ok := byName[name]
	if !ok {
		return entityInvalid, fmt.Errorf("entity %q: %w", name, domain.ErrUnclassifiedEntity)
	}
	return e, nil
}

// All returns every registered entity in declaration order.
func All() []Entity {
	out := make([]Entity, 0, len(registry))
	for i := range registry {
		if e := Entity(i); e.Valid() {
			out = append(out, e)
		}
	}
	return out
}

// TenantScopedEntities returns every registered tenant-scoped entity.
func TenantScopedEntities() []Entity {
	var out []Entity
	for _, e := range All() {
		if !e.IsSystemScoped() {
			out = append(out, e)
		}
	}
	return out
}
