/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

QUANTITIES:
  Quantities are decimal.Decimal. They are written as JSON strings ("12.5")
  and accepted as either strings or numbers.

VALIDATION:
  Request types carry go-playground/validator tags, checked in
  Handler.decode before any ledger call. Ledger-level rules (negative
  quantities, unknown references) are enforced again by the coordinator.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/site-ledger/ledger"
)

// =============================================================================
// MATERIALS
// =============================================================================

type MaterialDTO struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	Category      string          `json:"category"`
	Brand         string          `json:"brand,omitempty"`
	Location      string          `json:"location,omitempty"`
	Unit          string          `json:"unit"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	Notes         string          `json:"notes,omitempty"`
	Version       int64           `json:"version"`
	LowStock      bool            `json:"low_stock"`
}

// SaveMaterialRequest creates or replaces a material. On update the id
// comes from the URL.
type SaveMaterialRequest struct {
	ID            string          `json:"id"`
	Name          string          `json:"name" validate:"required"`
	Category      string          `json:"category"`
	Brand         string          `json:"brand"`
	Location      string          `json:"location"`
	Unit          string          `json:"unit" validate:"required"`
	CurrentStock  decimal.Decimal `json:"current_stock"`
	MinStockLevel decimal.Decimal `json:"min_stock_level"`
	Notes         string          `json:"notes"`
}

// =============================================================================
// PROJECTS
// =============================================================================

type ProjectDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ClientName  string `json:"client_name,omitempty"`
	ClientEmail string `json:"client_email,omitempty"`
	ClientPhone string `json:"client_phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Status      string `json:"status"`
}

type SaveProjectRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name" validate:"required"`
	ClientName  string `json:"client_name"`
	ClientEmail string `json:"client_email" validate:"omitempty,email"`
	ClientPhone string `json:"client_phone"`
	Address     string `json:"address"`
	Status      string `json:"status" validate:"required,oneof=PLANNED ACTIVE COMPLETED"`
}

// SaveProjectResponse reports how many open deliveries a completion closed.
type SaveProjectResponse struct {
	Project             ProjectDTO `json:"project"`
	DeliveriesCompleted int        `json:"deliveries_completed"`
}

type MaterialStockDTO struct {
	MaterialID string          `json:"material_id"`
	Name       string          `json:"name"`
	Unit       string          `json:"unit,omitempty"`
	Allocated  decimal.Decimal `json:"allocated"`
	Current    decimal.Decimal `json:"current"`
}

type ProjectStatsResponse struct {
	ProjectID      string             `json:"project_id"`
	Materials      []MaterialStockDTO `json:"materials"`
	TotalAllocated decimal.Decimal    `json:"total_allocated"`
}

// ProjectMovementRequest is the body of the allocation, stock-check and
// return endpoints; the project and type come from the route.
type ProjectMovementRequest struct {
	MaterialID  string          `json:"material_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity"`
	PerformedBy string          `json:"performed_by"`
	Memo        string          `json:"memo"`
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

type TransactionDTO struct {
	ID             string          `json:"id"`
	MaterialID     string          `json:"material_id"`
	ProjectID      string          `json:"project_id,omitempty"`
	Type           string          `json:"type"`
	Quantity       decimal.Decimal `json:"quantity"`
	PerformedBy    string          `json:"performed_by,omitempty"`
	Memo           string          `json:"memo,omitempty"`
	CreatedAt      string          `json:"created_at"`
	DeliveryStatus string          `json:"delivery_status,omitempty"`
}

type CreateTransactionRequest struct {
	ID              string          `json:"id"`
	MaterialID      string          `json:"material_id" validate:"required"`
	ProjectID       string          `json:"project_id"`
	Type            string          `json:"type" validate:"required,oneof=IN OUT ADJUST CHECK"`
	Quantity        decimal.Decimal `json:"quantity"`
	PerformedBy     string          `json:"performed_by"`
	Memo            string          `json:"memo"`
	DeliveryStatus  string          `json:"delivery_status" validate:"omitempty,oneof=PENDING IN_TRANSIT DELIVERED"`
	WarehouseEffect string          `json:"warehouse_effect" validate:"omitempty,oneof=apply skip"`
}

// PatchTransactionRequest edits a transaction. Absent fields are unchanged.
type PatchTransactionRequest struct {
	Quantity       *decimal.Decimal `json:"quantity"`
	Memo           *string          `json:"memo"`
	DeliveryStatus *string          `json:"delivery_status" validate:"omitempty,oneof=PENDING IN_TRANSIT DELIVERED"`
}

type SetDeliveryRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING IN_TRANSIT DELIVERED"`
}

type HistoryEntryDTO struct {
	TransactionDTO
	MaterialName  string `json:"material_name"`
	Unit          string `json:"unit,omitempty"`
	PerformerName string `json:"performer_name"`
}

// =============================================================================
// DELIVERIES
// =============================================================================

type DeliveryItemDTO struct {
	TransactionDTO
	Status       string `json:"status"`
	MaterialName string `json:"material_name"`
	Unit         string `json:"unit,omitempty"`
	ProjectName  string `json:"project_name"`
	Address      string `json:"address,omitempty"`
}

type DeliveryGroupDTO struct {
	Key   string            `json:"key"`
	Label string            `json:"label"`
	Items []DeliveryItemDTO `json:"items"`
}

// =============================================================================
// USERS
// =============================================================================

type UserDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Role  string `json:"role"`
}

type CreateUserRequest struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
	Phone string `json:"phone"`
	Role  string `json:"role" validate:"required,oneof=ADMIN STAFF DRIVER"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toMaterialDTO(m ledger.Material) MaterialDTO {
	return MaterialDTO{
		ID:            string(m.ID),
		Name:          m.Name,
		Category:      m.Category,
		Brand:         m.Brand,
		Location:      m.Location,
		Unit:          m.Unit,
		CurrentStock:  m.CurrentStock,
		MinStockLevel: m.MinStockLevel,
		Notes:         m.Notes,
		Version:       m.Version,
		LowStock:      m.IsLowStock(),
	}
}

func toProjectDTO(p ledger.Project) ProjectDTO {
	return ProjectDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		ClientName:  p.ClientName,
		ClientEmail: p.ClientEmail,
		ClientPhone: p.ClientPhone,
		Address:     p.Address,
		Status:      string(p.Status),
	}
}

func toTransactionDTO(tx ledger.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:             string(tx.ID),
		MaterialID:     string(tx.MaterialID),
		ProjectID:      string(tx.ProjectID),
		Type:           string(tx.Type),
		Quantity:       tx.Quantity,
		PerformedBy:    string(tx.PerformedBy),
		Memo:           tx.Memo,
		CreatedAt:      tx.CreatedAt.UTC().Format(time.RFC3339Nano),
		DeliveryStatus: string(tx.DeliveryStatus),
	}
}

func toTransactionDTOs(txs []ledger.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = toTransactionDTO(tx)
	}
	return dtos
}

func toUserDTO(u ledger.User) UserDTO {
	return UserDTO{
		ID:    string(u.ID),
		Name:  u.Name,
		Email: u.Email,
		Phone: u.Phone,
		Role:  string(u.Role),
	}
}
