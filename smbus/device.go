package smbus

import "maps"

// Device is the handle for one attached slave address. Its transfers go
// through the owning controller with the device's address and flags.
type Device struct {
	Client

	ctrl  *Controller
	props map[string]string
	n     *notifier
}

func newDevice(ctrl *Controller, addr uint16, flags ClientFlags, props map[string]string) *Device {
	return &Device{
		Client: Client{Adapter: ctrl, Addr: addr, Flags: flags},
		ctrl:   ctrl,
		props:  maps.Clone(props),
		n:      newNotifier(),
	}
}

// Controller returns the adapter the device is attached to
func (d *Device) Controller() *Controller { return d.ctrl }

// Property returns one entry of the property bag given at attach time
func (d *Device) Property(key string) (string, bool) {
	v, ok := d.props[key]
	return v, ok
}

// Properties returns a copy of the property bag
func (d *Device) Properties() map[string]string {
	return maps.Clone(d.props)
}

// SetConsumer registers the driver receiving host notify events from this
// address. A nil consumer drops further events.
func (d *Device) SetConsumer(c NotifyConsumer) {
	d.n.set(c)
}

// Done is closed once the device has been detached and its pending
// notify events delivered
func (d *Device) Done() <-chan struct{} {
	return d.n.done
}

func (d *Device) release() {
	d.n.close()
}
