package rest

import (
	"net/http"

	"github.com/KevinKickass/eposio/internal/devices"
	"github.com/KevinKickass/eposio/internal/types"
	"github.com/gin-gonic/gin"
)

// GET /api/v1/devices
func (s *Server) listDevices(c *gin.Context) {
	list := s.lm.DeviceManager().ListDevices()

	response := make([]types.DeviceInfo, 0, len(list))
	for _, device := range list {
		response = append(response, device.Info())
	}

	c.JSON(http.StatusOK, gin.H{
		"devices": response,
		"count":   len(response),
	})
}

// GET /api/v1/devices/:id
func (s *Server) getDevice(c *gin.Context) {
	device, ok := s.lookupDevice(c)
	if !ok {
		return
	}

	response := gin.H{
		"device": device.Info(),
		"inputs": functionTable(device.Funcs()),
		"packed": device.Packed(),
	}
	if monitor, ok := s.lm.DeviceManager().GetMonitor(device.ID); ok && monitor.IsRunning() {
		response["monitoring"] = true
		response["drifted"] = monitor.Drifted()
	}

	c.JSON(http.StatusOK, response)
}

// lookupDevice resolves :id as UUID or name and writes 404 when unknown.
func (s *Server) lookupDevice(c *gin.Context) (*devices.InputDevice, bool) {
	ref := c.Param("id")
	device, exists := s.lm.DeviceManager().Lookup(ref)
	if !exists {
		c.JSON(http.StatusNotFound, types.NewErrorResponse("DEVICE_404", "Device not found", ref))
		return nil, false
	}
	return device, true
}
