package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xzax/axdns/internal/api/models"
	"github.com/xzax/axdns/internal/dns"
	"github.com/xzax/axdns/internal/repository"
)

// recordFilter is the optional ?name= and ?type= pair.
type recordFilter struct {
	name    dns.Name
	rt      dns.RecordType
	hasName bool
	hasType bool
}

func parseFilter(c *gin.Context) (recordFilter, error) {
	var f recordFilter
	if v := c.Query("name"); v != "" {
		n, err := dns.NewName(v)
		if err != nil {
			return f, err
		}
		f.name, f.hasName = n, true
	}
	if v := c.Query("type"); v != "" {
		rt, err := dns.ParseRecordType(v)
		if err != nil {
			return f, err
		}
		f.rt, f.hasType = rt, true
	}
	return f, nil
}

// ListRecords returns stored records, filtered by name and/or type when given.
func (h *Handler) ListRecords(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	var recs []dns.Record
	switch {
	case f.hasName && f.hasType:
		recs, err = h.env.Records.GetAllByNameAndType(ctx, f.name, f.rt)
	case f.hasName:
		recs, err = h.env.Records.GetAllByName(ctx, f.name)
	case f.hasType:
		recs, err = h.env.Records.GetAllByType(ctx, f.rt)
	default:
		recs, err = h.env.Records.GetAll(ctx)
	}
	if err != nil {
		h.storeError(c, "list records", err)
		return
	}
	c.JSON(http.StatusOK, recordList(recs))
}

// ListNames returns every distinct owner name.
func (h *Handler) ListNames(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	names, err := h.env.Records.GetAllNames(c.Request.Context())
	if err != nil {
		h.storeError(c, "list names", err)
		return
	}
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n.String())
	}
	c.JSON(http.StatusOK, models.NameListResponse{Names: out, Count: len(out)})
}

// ListChains returns the alias chains for ?name= and ?type=, both required.
func (h *Handler) ListChains(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}
	if !f.hasName || !f.hasType {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "name and type are required"})
		return
	}
	chains, err := h.env.Records.GetAllChainsByNameAndType(c.Request.Context(), f.name, f.rt)
	if err != nil {
		h.storeError(c, "list chains", err)
		return
	}
	out := make([]models.AliasChain, 0, len(chains))
	for _, ch := range chains {
		out = append(out, models.AliasChain{Alias: toModel(ch.Alias), Record: toModel(ch.Record)})
	}
	c.JSON(http.StatusOK, models.ChainListResponse{Chains: out, Count: len(out)})
}

// CreateRecord inserts a record. Inserting an existing record replaces its TTL.
func (h *Handler) CreateRecord(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	if err := h.env.Records.Insert(c.Request.Context(), rec); err != nil {
		h.storeError(c, "insert record", err)
		return
	}
	h.logger.Info("record inserted", "record", dns.RecordText(rec))
	c.JSON(http.StatusCreated, toModel(rec))
}

// DeleteRecord removes one exact record (name, type, TTL and value must all
// match) and returns what was removed.
func (h *Handler) DeleteRecord(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	rec, ok := h.bindRecord(c)
	if !ok {
		return
	}
	removed, err := h.env.Records.Delete(c.Request.Context(), rec)
	if err != nil {
		h.storeError(c, "delete record", err)
		return
	}
	if len(removed) == 0 {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "record not found"})
		return
	}
	c.JSON(http.StatusOK, recordList(removed))
}

// DeleteRecords removes every record matching ?name= and/or ?type=. At
// least one must be given; use ClearRecords to remove everything.
func (h *Handler) DeleteRecords(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	f, err := parseFilter(c)
	if err != nil {
		h.badRequest(c, err)
		return
	}

	ctx := c.Request.Context()
	var removed []dns.Record
	switch {
	case f.hasName && f.hasType:
		removed, err = h.env.Records.DeleteAllByNameAndType(ctx, f.name, f.rt)
	case f.hasName:
		removed, err = h.env.Records.DeleteAllByName(ctx, f.name)
	case f.hasType:
		removed, err = h.env.Records.DeleteAllByType(ctx, f.rt)
	default:
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "name or type is required"})
		return
	}
	if err != nil {
		h.storeError(c, "delete records", err)
		return
	}
	c.JSON(http.StatusOK, recordList(removed))
}

// ClearRecords removes every record.
func (h *Handler) ClearRecords(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.env.Records.Clear(c.Request.Context()); err != nil {
		h.storeError(c, "clear records", err)
		return
	}
	h.logger.Info("record store cleared via api")
	c.JSON(http.StatusOK, models.StatusResponse{Status: "cleared"})
}

// FlushCache drops every cached lookup.
func (h *Handler) FlushCache(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	h.env.Records.Cache.Flush()
	c.JSON(http.StatusOK, models.StatusResponse{Status: "flushed"})
}

// RebuildFilter repopulates the negative-lookup filter from the store.
func (h *Handler) RebuildFilter(c *gin.Context) {
	if !h.ready(c) {
		return
	}
	if err := h.env.Records.ResetFilter(c.Request.Context()); err != nil {
		h.storeError(c, "rebuild filter", err)
		return
	}
	c.JSON(http.StatusOK, models.StatusResponse{Status: "rebuilt"})
}

func (h *Handler) ready(c *gin.Context) bool {
	if h.env == nil || h.env.Records == nil {
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: "record store unavailable"})
		return false
	}
	return true
}

func (h *Handler) bindRecord(c *gin.Context) (dns.Record, bool) {
	var req models.Record
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "Invalid request: " + err.Error()})
		return nil, false
	}
	rt, err := dns.ParseRecordType(req.Type)
	if err != nil {
		h.badRequest(c, err)
		return nil, false
	}
	rec, err := dns.NewRecordFromText(req.Name, rt, req.TTL, req.Value)
	if err != nil {
		h.badRequest(c, err)
		return nil, false
	}
	return rec, true
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: err.Error()})
}

// storeError maps repository failures to HTTP statuses.
func (h *Handler) storeError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{Error: err.Error()})
	case errors.Is(err, repository.ErrStoreAccess):
		h.logger.Error("record store failure", "op", op, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: op + " failed"})
	case errors.Is(err, dns.ErrDNSError):
		h.badRequest(c, err)
	default:
		h.logger.Error("record store failure", "op", op, "err", err)
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: op + " failed"})
	}
}

func toModel(r dns.Record) models.Record {
	h := r.Header()
	return models.Record{
		Name:  h.Name.String(),
		Type:  r.Type().String(),
		TTL:   h.TTL,
		Value: dns.RDataText(r),
	}
}

func recordList(recs []dns.Record) models.RecordListResponse {
	out := make([]models.Record, 0, len(recs))
	for _, r := range recs {
		out = append(out, toModel(r))
	}
	return models.RecordListResponse{Records: out, Count: len(out)}
}
