// Package api serves a device over HTTP.
package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/xload/internal/aperture"
	"github.com/samcharles93/xload/internal/device"
	"github.com/samcharles93/xload/internal/logger"
	"github.com/samcharles93/xload/pkg/bitstream"
)

// DefaultMaxBodyBytes bounds uploaded containers and bitstreams.
const DefaultMaxBodyBytes = 256 << 20

// Device is the part of a device the server needs.
type Device interface {
	Load(ctx context.Context, data []byte, flags device.LoadFlags) (*device.LoadResult, error)
	LoadBitstream(ctx context.Context, data []byte) (*bitstream.Header, error)
	Snapshot() device.Snapshot
	Apertures() []aperture.Entry
	Lookup(addr uint64) (aperture.Entry, int, bool)
	ComputeUnits() []device.ComputeUnit
	Banks() []device.Bank
	Reserve(flags uint32, size uint64) (int, error)
	Release(bank int, size uint64) error
}

type Server struct {
	dev          Device
	log          logger.Logger
	maxBodyBytes int64
}

type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) { s.log = l }
}

func WithMaxBodyBytes(n int64) Option {
	return func(s *Server) { s.maxBodyBytes = n }
}

func NewServer(dev Device, opts ...Option) *Server {
	s := &Server{dev: dev, log: logger.Nop(), maxBodyBytes: DefaultMaxBodyBytes}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/v1/device", s.handleDevice)
	e.GET("/v1/apertures", s.handleApertures)
	e.GET("/v1/apertures/lookup", s.handleLookup)
	e.GET("/v1/compute-units", s.handleComputeUnits)
	e.GET("/v1/memory", s.handleMemory)
	e.POST("/v1/memory/reserve", s.handleReserve)
	e.POST("/v1/memory/release", s.handleRelease)
	e.POST("/v1/xclbin", s.handleLoad)
	e.POST("/v1/bitstream", s.handleBitstream)
}

func (s *Server) handleDevice(c *echo.Context) error {
	return c.JSON(http.StatusOK, s.dev.Snapshot())
}

func (s *Server) handleApertures(c *echo.Context) error {
	entries := s.dev.Apertures()
	out := make([]ApertureResponse, len(entries))
	for i, e := range entries {
		out[i] = apertureResponse(i, e)
	}
	return c.JSON(http.StatusOK, ListResponse[ApertureResponse]{Object: "list", Data: out})
}

func (s *Server) handleLookup(c *echo.Context) error {
	raw := c.QueryParam("addr")
	if raw == "" {
		return writeBadRequest(c, "addr is required")
	}
	addr, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return writeBadRequest(c, fmt.Sprintf("invalid addr %q", raw))
	}
	e, idx, ok := s.dev.Lookup(addr)
	if !ok {
		return writeNotFound(c, fmt.Sprintf("no aperture contains %#x", addr))
	}
	return c.JSON(http.StatusOK, apertureResponse(idx, e))
}

func (s *Server) handleComputeUnits(c *echo.Context) error {
	cus := s.dev.ComputeUnits()
	if cus == nil {
		cus = []device.ComputeUnit{}
	}
	return c.JSON(http.StatusOK, ListResponse[device.ComputeUnit]{Object: "list", Data: cus})
}

func (s *Server) handleMemory(c *echo.Context) error {
	banks := s.dev.Banks()
	if banks == nil {
		banks = []device.Bank{}
	}
	return c.JSON(http.StatusOK, ListResponse[device.Bank]{Object: "list", Data: banks})
}

func (s *Server) handleReserve(c *echo.Context) error {
	req, err := decodeJSON[ReserveRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON body")
	}
	bank, err := s.dev.Reserve(req.Flags, req.Size)
	if err != nil {
		return s.writeDeviceError(c, err)
	}
	return c.JSON(http.StatusOK, ReserveResponse{Bank: bank, Size: req.Size})
}

func (s *Server) handleRelease(c *echo.Context) error {
	req, err := decodeJSON[ReleaseRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, "invalid JSON body")
	}
	if err := s.dev.Release(req.Bank, req.Size); err != nil {
		return s.writeDeviceError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleLoad(c *echo.Context) error {
	data, err := s.readBody(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	var flags device.LoadFlags
	if truthy(c.QueryParam("image")) {
		flags |= device.LoadImage
	}
	res, err := s.dev.Load(c.Request().Context(), data, flags)
	if err != nil {
		s.log.Warn("load request failed", "bytes", len(data), "err", err)
		return s.writeDeviceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleBitstream(c *echo.Context) error {
	data, err := s.readBody(c)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	h, err := s.dev.LoadBitstream(c.Request().Context(), data)
	if err != nil {
		return s.writeDeviceError(c, err)
	}
	return c.JSON(http.StatusOK, BitstreamResponse{
		DesignName:      h.DesignName,
		PartName:        h.PartName,
		Date:            h.Date,
		Time:            h.Time,
		BitstreamLength: h.BitstreamLength,
	})
}

func (s *Server) readBody(c *echo.Context) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, s.maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > s.maxBodyBytes {
		return nil, fmt.Errorf("body exceeds %d bytes", s.maxBodyBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}
	return data, nil
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

func decodeJSON[T any](r io.Reader) (T, error) {
	var out T
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}
