package dto

import (
	"kilang/internal/core/types"
	"kilang/internal/domain/formula"
)

// --- Requests ---

// FormulaMaterialRequest is one bill-of-materials line.
type FormulaMaterialRequest struct {
	MaterialID string `json:"materialId" binding:"required"`
	Ratio      string `json:"ratio" binding:"required"`
	Unit       string `json:"unit" binding:"required"`
}

// CreateFormulaRequest registers a new draft formula version.
type CreateFormulaRequest struct {
	ProductID string                   `json:"productId" binding:"required"`
	Name      string                   `json:"name" binding:"required"`
	Materials []FormulaMaterialRequest `json:"materials" binding:"required,min=1"`
}

// ActivateFormulaRequest activates a formula version.
type ActivateFormulaRequest struct {
	EffectiveFrom string `json:"effectiveFrom"`
}

// RequirementsRequest previews material needs for a target volume.
type RequirementsRequest struct {
	TargetVolume string `json:"targetVolume" binding:"required"`
}

// --- Responses ---

// FormulaMaterialResponse is one formula line on the wire.
type FormulaMaterialResponse struct {
	LineNo     int    `json:"lineNo"`
	MaterialID string `json:"materialId"`
	Ratio      string `json:"ratio"`
	Unit       string `json:"unit"`
}

// FormulaResponse is a formula version on the wire.
type FormulaResponse struct {
	ID            string                    `json:"id"`
	ProductID     string                    `json:"productId"`
	Version       int                       `json:"version"`
	Name          string                    `json:"name"`
	IsActive      bool                      `json:"isActive"`
	EffectiveFrom *string                   `json:"effectiveFrom,omitempty"`
	EffectiveTo   *string                   `json:"effectiveTo,omitempty"`
	Materials     []FormulaMaterialResponse `json:"materials"`
}

// FromFormula creates FormulaResponse from the domain model.
func FromFormula(f formula.ProductionFormula) FormulaResponse {
	materials := make([]FormulaMaterialResponse, len(f.Materials))
	for i, m := range f.Materials {
		materials[i] = FormulaMaterialResponse{
			LineNo:     m.LineNo,
			MaterialID: m.MaterialID.String(),
			Ratio:      types.FormatQuantity(m.Ratio),
			Unit:       m.Unit,
		}
	}

	resp := FormulaResponse{
		ID:        f.ID.String(),
		ProductID: f.ProductID.String(),
		Version:   f.Version,
		Name:      f.Name,
		IsActive:  f.IsActive,
		Materials: materials,
	}
	if f.EffectiveFrom != nil {
		s := types.FormatBusinessDate(*f.EffectiveFrom)
		resp.EffectiveFrom = &s
	}
	if f.EffectiveTo != nil {
		s := types.FormatBusinessDate(*f.EffectiveTo)
		resp.EffectiveTo = &s
	}
	return resp
}

// RequirementResponse is one computed material need.
type RequirementResponse struct {
	MaterialID      string `json:"materialId"`
	PlannedQuantity string `json:"plannedQuantity"`
	Unit            string `json:"unit"`
}

// FromRequirements converts computed requirements.
func FromRequirements(reqs []formula.Requirement) []RequirementResponse {
	out := make([]RequirementResponse, len(reqs))
	for i, r := range reqs {
		out[i] = RequirementResponse{
			MaterialID:      r.MaterialID.String(),
			PlannedQuantity: types.FormatQuantity(r.PlannedQuantity),
			Unit:            r.Unit,
		}
	}
	return out
}
