package core

import "testing"

func TestPhysicalDeviceInfoSummary(t *testing.T) {
	info := PhysicalDeviceInfo{
		Name:       "llvmpipe",
		VendorID:   0x10005,
		Memory:     8 << 30,
		Extensions: []string{"VK_KHR_swapchain", "VK_KHR_maintenance1"},
	}

	fields := info.Summary()
	if fields["name"] != "llvmpipe" {
		t.Errorf("name is %v", fields["name"])
	}
	if fields["memoryMiB"] != uint(8192) {
		t.Errorf("memoryMiB is %v, want 8192", fields["memoryMiB"])
	}
	if fields["extensions"] != 2 {
		t.Errorf("extensions is %v, want 2", fields["extensions"])
	}
}
