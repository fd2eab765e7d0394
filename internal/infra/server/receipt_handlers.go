package server

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/receiptly/receipts-service/internal/common"
	"github.com/receiptly/receipts-service/internal/core/receipts"
)

// fieldUpdateRequest is decoded with UseNumber so numeric edit values keep
// their submitted precision until validated.
type fieldUpdateRequest struct {
	Field string      `json:"field"`
	Value interface{} `json:"value"`
}

func decodeFieldUpdate(body []byte) (fieldUpdateRequest, error) {
	var req fieldUpdateRequest
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		return req, common.NewValidationError("invalid request body")
	}
	if req.Field == "" {
		return req, common.NewValidationError("field is required")
	}
	return req, nil
}

func receiptID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return uuid.Nil, common.NewValidationError("invalid receipt id")
	}
	return id, nil
}

func (s *Server) handleListReceipts(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.ListReceipts")
	defer span.End()

	list, err := s.services.Receipts.List(ctx, currentUser(c).ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"receipts": renderReceipts(list), "count": len(list)})
}

func (s *Server) handleSubmitReceipt(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.SubmitReceipt")
	defer span.End()

	raw, err := receipts.DecodeRawReceiptBytes(c.Body())
	if err != nil {
		return s.renderError(c, common.NewValidationError("invalid request body"))
	}

	stored, err := s.services.Receipts.Submit(ctx, currentUser(c), raw)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"message": "Receipt saved", "id": stored.ID})
}

func (s *Server) handleGetReceipt(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.GetReceipt")
	defer span.End()

	id, err := receiptID(c)
	if err != nil {
		return s.renderError(c, err)
	}
	r, err := s.services.Receipts.Get(ctx, currentUser(c).ID, id)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(renderReceipt(r))
}

func (s *Server) handleDeleteReceipt(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.DeleteReceipt")
	defer span.End()

	id, err := receiptID(c)
	if err != nil {
		return s.renderError(c, err)
	}
	if err := s.services.Receipts.Delete(ctx, currentUser(c).ID, id); err != nil {
		return s.renderError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleUpdateReceiptField(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.UpdateReceiptField")
	defer span.End()

	id, err := receiptID(c)
	if err != nil {
		return s.renderError(c, err)
	}
	req, err := decodeFieldUpdate(c.Body())
	if err != nil {
		return s.renderError(c, err)
	}

	updated, err := s.services.Receipts.UpdateReceiptField(ctx, currentUser(c).ID, id, req.Field, req.Value)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(renderReceipt(updated))
}

func (s *Server) handleUpdateItemField(c *fiber.Ctx) error {
	ctx, span := tracer.Start(c.UserContext(), "http.UpdateItemField")
	defer span.End()

	id, err := receiptID(c)
	if err != nil {
		return s.renderError(c, err)
	}
	index, err := strconv.Atoi(c.Params("index"))
	if err != nil {
		return s.renderError(c, common.NewValidationError("invalid item index"))
	}
	req, err := decodeFieldUpdate(c.Body())
	if err != nil {
		return s.renderError(c, err)
	}

	updated, err := s.services.Receipts.UpdateItemField(ctx, currentUser(c).ID, id, index, req.Field, req.Value)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(renderReceipt(updated))
}

func (s *Server) handleStoreNames(c *fiber.Ctx) error {
	names, err := s.services.Receipts.StoreNames(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"store_names": names})
}

func (s *Server) handleStoreCategories(c *fiber.Ctx) error {
	categories, err := s.services.Receipts.StoreCategories(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.renderError(c, err)
	}
	return c.JSON(fiber.Map{"store_categories": categories})
}

// receiptResponse augments the stored receipt with its formatted date.
type receiptResponse struct {
	*receipts.Receipt
	Date string `json:"date"`
}

func renderReceipt(r *receipts.Receipt) receiptResponse {
	return receiptResponse{Receipt: r, Date: r.DateString()}
}

func renderReceipts(list []*receipts.Receipt) []receiptResponse {
	out := make([]receiptResponse, 0, len(list))
	for _, r := range list {
		out = append(out, renderReceipt(r))
	}
	return out
}
