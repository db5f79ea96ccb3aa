package rest

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/KevinKickass/eposio/internal/devices"
	"github.com/KevinKickass/eposio/internal/epos/input"
	"github.com/KevinKickass/eposio/internal/types"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// FunctionEntry is one row of the function table as served over HTTP.
type FunctionEntry struct {
	Function input.Function `json:"function"`
	input.Descriptor
}

func functionTable(funcs [input.NumFuncs]input.Descriptor) []FunctionEntry {
	table := make([]FunctionEntry, 0, len(funcs))
	for _, fn := range input.Functions() {
		table = append(table, FunctionEntry{Function: fn, Descriptor: funcs[fn]})
	}
	return table
}

type descriptorRequest struct {
	Channel  *int           `json:"channel" binding:"required"`
	Polarity input.Polarity `json:"polarity"`
	Execute  bool           `json:"execute"`
	Enabled  bool           `json:"enabled"`
}

// GET /api/v1/devices/:id/inputs
func (s *Server) listInputs(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device.Name,
		"state":  device.State(),
		"inputs": functionTable(device.Funcs()),
	})
}

// GET /api/v1/devices/:id/inputs/:function
func (s *Server) getInput(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}
	fn, ok := parseFunctionParam(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, FunctionEntry{Function: fn, Descriptor: device.Func(fn)})
}

// PUT /api/v1/devices/:id/inputs/:function
func (s *Server) putInput(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}
	fn, ok := parseFunctionParam(c)
	if !ok {
		return
	}

	var req descriptorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INPUT_400", "Invalid request body", err.Error()))
		return
	}
	if !checkChannel(c, *req.Channel) {
		return
	}

	desc := input.NewDescriptor(*req.Channel, req.Polarity, req.Execute, req.Enabled)
	err := device.SetFunc(c.Request.Context(), fn, desc)
	s.respondApply(c, device, fn, err)
}

// PATCH /api/v1/devices/:id/inputs/:function
func (s *Server) patchInput(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}
	fn, ok := parseFunctionParam(c)
	if !ok {
		return
	}

	var patch devices.FuncPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INPUT_400", "Invalid request body", err.Error()))
		return
	}
	if patch.Empty() {
		c.JSON(http.StatusBadRequest, types.NewErrorResponse("INPUT_400", "Nothing to change", nil))
		return
	}
	if patch.Channel != nil && !checkChannel(c, *patch.Channel) {
		return
	}

	err := device.Patch(c.Request.Context(), fn, patch)
	s.respondApply(c, device, fn, err)
}

// POST /api/v1/devices/:id/inputs/setup
func (s *Server) setupInputs(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	err := device.Setup(c.Request.Context())
	result := applyResult(device, err)
	if err != nil {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("INPUT_502", result.Message, result))
		return
	}

	c.JSON(http.StatusOK, result)
}

// POST /api/v1/devices/:id/inputs/sync
func (s *Server) syncInputs(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	if err := device.Sync(c.Request.Context()); err != nil {
		s.logger.Warn("Input sync failed", zap.String("device", device.Name), zap.Error(err))
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("INPUT_502", "Failed to read input configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device": device.Name,
		"inputs": functionTable(device.Funcs()),
		"packed": device.Packed(),
	})
}

// GET /api/v1/devices/:id/inputs/verify
func (s *Server) verifyInputs(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	report, drifted, err := device.CheckDrift(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("INPUT_502", "Failed to read input configuration", err.Error()))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"device":   device.Name,
		"in_sync":  !drifted,
		"expected": report.Expected,
		"actual":   report.Actual,
	})
}

// GET /api/v1/devices/:id/inputs/packed
func (s *Server) getPacked(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	packed := device.Packed()
	c.JSON(http.StatusOK, gin.H{
		"device": device.Name,
		"packed": packed,
		"hex":    packed.Hex(),
	})
}

// respondApply answers a setter call. The function table in memory keeps
// the new value even when the device rejected it.
func (s *Server) respondApply(c *gin.Context, device *devices.InputDevice, fn input.Function, err error) {
	result := applyResult(device, err)
	entry := FunctionEntry{Function: fn, Descriptor: device.Func(fn)}

	if err != nil {
		c.JSON(http.StatusBadGateway, types.NewErrorResponse("INPUT_502", result.Message, gin.H{
			"input":  entry,
			"result": result,
		}))
		return
	}

	response := gin.H{
		"input":  entry,
		"result": result,
	}
	if entry.Channel == input.ReservedFunc {
		response["warning"] = fmt.Sprintf("channel %d is reserved and not routed", input.ReservedFunc)
	}
	c.JSON(http.StatusOK, response)
}

func applyResult(device *devices.InputDevice, err error) devices.SetupResult {
	code := input.Code(err)
	result := devices.SetupResult{
		Code:    int(code),
		Message: code.String(),
		Packed:  device.Packed(),
	}
	if err != nil {
		result.Error = err.Error()
	}
	return result
}

// parseFunctionParam accepts a function name or its ordinal.
func parseFunctionParam(c *gin.Context) (input.Function, bool) {
	raw := c.Param("function")

	fn, err := input.ParseFunction(raw)
	if err != nil {
		n, convErr := strconv.Atoi(raw)
		if convErr != nil || !input.Function(n).Valid() {
			c.JSON(http.StatusNotFound, types.NewErrorResponse("INPUT_404", "Unknown input function", raw))
			return 0, false
		}
		fn = input.Function(n)
	}
	return fn, true
}

var allowedChannels = fmt.Sprintf("0-%d, %d (reserved, not routed) or %d",
	input.ReservedFunc-1, input.ReservedFunc, input.DummyFunc)

func checkChannel(c *gin.Context, channel int) bool {
	if input.ValidChannel(channel) {
		return true
	}
	c.JSON(http.StatusBadRequest, types.NewErrorResponse("INPUT_400", "Channel out of range", gin.H{
		"channel": channel,
		"allowed": allowedChannels,
	}))
	return false
}
