package checks

import "fmt"

// Check identifies one entry in the check table
type Check int

// Checks and options, in table order. Options share the table so that they
// can be switched on and off through the same name-matched overrides.
const (
	OptDelayPF Check = iota
	OptAsyncBufferDestruction
	OptAutoRestoreVSync
	OptNewMds
	OptNoMds
	OptBrief
	OptRandomizeModes
	OptDispFrameAlwaysInsideScreen
	OptForceGlFill
	OptForceCPUFill
	OptBlockInvalidSetDisplay
	OptSimultaneousBlank
	OptKmsgLogging
	OptSpoofNoPanel
	OptSpoofDRRS
	OptVSyncInterception
	OptPageFlipInterception
	OptDivergeFrameNumbers

	CheckDrmShimFail
	CheckFrameworkProgError
	CheckInternalError
	CheckCommandLineParam
	CheckInternalZOrder
	CheckMdsProtocol
	CheckTooSlow
	CheckObjectLeak
	CheckReplayFail
	CheckTestBufferAlloc
	CheckFacilityNotAvailable
	CheckHdmiReq
	CheckScreenNotBigEnough
	CheckSessionFail
	CheckTestFail
	CheckGlFail
	CheckHwcBind
	CheckDrmShimBind
	CheckMdsBind
	CheckHwcServiceBind
	CheckFileError
	CheckPngFail
	CheckSurfaceSender
	CheckUnknownHWCAPICall
	CheckLogParserError
	CheckFenceQueryFail
	CheckTransparencyDetectionFailure
	CheckHwcVersion
	CheckAsyncEventsDropped
	CheckBadPointerFormat
	CheckOnSetLatency
	CheckCompToDisplayedBuf
	CheckDelayedOnSetComp
	CheckDrmIoctlGemWaitLatency
	CheckFenceAllocation
	CheckFenceLeak
	CheckFenceNonZero
	CheckFlipFences
	CheckUnknownFlipSource
	CheckGrallocDetails
	CheckHwcGeneratesVSync
	CheckLayerDisplay
	CheckReleaseFenceWait
	CheckReleaseFenceTimeout
	CheckRetireFenceSignalledPromptly
	CheckRunAbort
	CheckSFRestarted
	CheckSkipLayerUsage
	CheckTooManyConsecutiveDroppedFrames
	CheckTooManyDroppedFrames
	CheckExtendedModeExpectation
	CheckHotPlugTimeout
	CheckNoRetireFenceOnPrimary
	CheckDDRMode
	CheckUnnecessaryComposition
	CheckCompositionBlend
	CheckSfFallback
	CheckHwcInterface
	CheckTooManySnapshotsRestored
	CheckSrcBufAlsoTgt
	CheckLLQOverflow
	CheckInvalidCrtc
	CheckDrmCallSuccess
	CheckPlaneIdInvalidForCrtc
	CheckIoctlParameters
	CheckPlaneOffScreen
	CheckSetPlaneNeededAfterRotate
	CheckPlaneCrop
	CheckPlaneScale
	CheckPlaneTransform
	CheckPlaneBlending
	CheckPixelAlpha
	CheckPlaneAlpha
	CheckInvalidBlend
	CheckBackHwStackPixelFormat
	CheckMainPlaneFullScreen
	CheckBufferTooSmall
	CheckDisplayCropEqualDisplayFrame
	CheckLayerOrder
	CheckDrmFence
	CheckDisplayDisableInconsistency
	CheckExtendedModePanelControl
	CheckDisabledDisplayBlanked
	CheckUnblankingLatency
	CheckEsdRecovery
	CheckFirstFrame32bit
	CheckPanelFitterConstantAspectRatio
	CheckPanelFitterMode
	CheckPanelFitterUnnecessary
	CheckPanelFitterOutOfSpec
	CheckDisplayMode
	CheckPlaneFormatNotSupported
	CheckBadScalerSourceSize
	CheckScalingFactor
	CheckNumScalersUsed
	CheckSetDisplayParams
	CheckNuclearParams
	CheckRCNotSupportedOnPlane
	CheckRCNormalBufSentToRCPlane
	CheckRCWithInvalidRotation
	CheckRCInvalidFormat
	CheckRCAuxDetailsMismatch
	CheckRCInvalidTiling
	CheckRCSentToVPP
	CheckNoFlipWhileDPMSDisabled
	CheckHwcCompMatchesRef
	CheckLayerOnScreen
	CheckLayerPartlyOnScreen
	CheckSfCompMatchesRef
	CheckHwcParams
	CheckCRC
	CheckFlicker
	CheckFlickerClrDepth
	CheckFlickerMaxFifo
	CheckVSyncTiming
	CheckDispGeneratesVSync
	CheckTimelyPageFlip
	CheckDispGeneratesPageFlip
	CheckDrmSetDisplayLockup
	CheckDPMSLockup
	CheckDrmSetPropLatency
	CheckDrmSetPropLatencyX
	CheckDrmIoctlLatency
	CheckDrmIoctlLatencyX
	CheckDrmFbId
	CheckBufferObjectUnknown
	CheckAllocFail
	CheckBufferQueryFail

	// NumChecks is the size of the check table
	NumChecks
)

// Priority is the severity attached to a check
type Priority int

// Priorities, lowest first
const (
	PriorityVerbose Priority = iota
	PriorityDebug
	PriorityInfo
	PriorityWarn
	PriorityError
	PriorityFatal
)

var priorityNames = [...]string{"verbose", "debug", "info", "warn", "error", "fatal"}

// String returns the lower-case priority name
func (p Priority) String() string {
	if p < 0 || int(p) >= len(priorityNames) {
		return fmt.Sprintf("priority(%d)", int(p))
	}
	return priorityNames[p]
}

// ParsePriority accepts a priority name or its first letter (V, D, I, W, E, F)
func ParsePriority(s string) (Priority, error) {
	for i, name := range priorityNames {
		if s == name || (len(s) == 1 && (s[0] == name[0] || s[0] == name[0]-'a'+'A')) {
			return Priority(i), nil
		}
	}
	return PriorityInfo, fmt.Errorf("%w: %q", ErrUnknownPriority, s)
}

// Component is the part of the system a check attributes failures to
type Component int

// Components
const (
	ComponentNone Component = iota
	ComponentTest
	ComponentHWC
	ComponentBuffers
	ComponentDisplays
	ComponentSF

	numComponents
)

var componentNames = [numComponents]string{"None", "Test", "HWC", "Buffers", "Displays", "SF"}

// String returns the component name used in reports
func (c Component) String() string {
	if c < 0 || c >= numComponents {
		return fmt.Sprintf("Component(%d)", int(c))
	}
	return componentNames[c]
}

// Category groups checks for enabling and reporting
type Category int

// Categories. CategoryOpt entries are never switched on by component, and
// CategoryStickyTest counters survive Result.Reset.
const (
	CategoryTest Category = iota
	CategorySf
	CategoryDisplays
	CategoryBuffers
	CategoryHwc
	CategoryHwcDisplay
	CategoryUX
	CategoryDbg
	CategoryOpt
	CategoryPriWarn
	CategoryStickyTest
)

type checkDef struct {
	name        string
	component   Component
	priority    Priority
	category    Category
	description string
}

var checkTable = [NumChecks]checkDef{
	OptDelayPF:                           {"OptDelayPF", ComponentNone, PriorityInfo, CategoryOpt, "Delay some page flips by around a second"},
	OptAsyncBufferDestruction:            {"OptAsyncBufferDestruction", ComponentNone, PriorityInfo, CategoryOpt, "Harness defers buffer destruction to a thread"},
	OptAutoRestoreVSync:                  {"OptAutoRestoreVSync", ComponentNone, PriorityInfo, CategoryOpt, "Restore VSync capture after vsync timeout"},
	OptNewMds:                            {"OptNewMds", ComponentNone, PriorityInfo, CategoryOpt, "New Multi-Display Service interface"},
	OptNoMds:                             {"OptNoMds", ComponentNone, PriorityInfo, CategoryOpt, "Multi-Display capabilities encapsulated within HWC"},
	OptBrief:                             {"OptBrief", ComponentNone, PriorityInfo, CategoryOpt, "Set brief mode for standard output"},
	OptRandomizeModes:                    {"OptRandomizeModes", ComponentNone, PriorityInfo, CategoryOpt, "Randomly change the number and order of modes on a hot plug"},
	OptDispFrameAlwaysInsideScreen:       {"OptDispFrameAlwaysInsideScreen", ComponentNone, PriorityInfo, CategoryOpt, "Force display frame to always be inside the screen area"},
	OptForceGlFill:                       {"OptForceGlFill", ComponentNone, PriorityInfo, CategoryOpt, "Force buffers to be filled using GL"},
	OptForceCPUFill:                      {"OptForceCPUFill", ComponentNone, PriorityInfo, CategoryOpt, "Force buffers to be filled using CPU"},
	OptBlockInvalidSetDisplay:            {"OptBlockInvalidSetDisplay", ComponentNone, PriorityInfo, CategoryOpt, "Block drmModeSetDisplay call with invalid parameters"},
	OptSimultaneousBlank:                 {"OptSimultaneousBlank", ComponentNone, PriorityInfo, CategoryOpt, "Multiple simultaneous blank/unblanks permitted"},
	OptKmsgLogging:                       {"OptKmsgLogging", ComponentNone, PriorityInfo, CategoryOpt, "Enable Kmsg Logging"},
	OptSpoofNoPanel:                      {"OptSpoofNoPanel", ComponentNone, PriorityInfo, CategoryOpt, "Pretend panel is HDMI"},
	OptSpoofDRRS:                         {"OptSpoofDRRS", ComponentNone, PriorityInfo, CategoryOpt, "Let HWC think DRRS is enabled even if kernel does not think so"},
	OptVSyncInterception:                 {"OptVSyncInterception", ComponentNone, PriorityInfo, CategoryOpt, "Intercept VSyncs"},
	OptPageFlipInterception:              {"OptPageFlipInterception", ComponentNone, PriorityInfo, CategoryOpt, "Intercept Page Flips"},
	OptDivergeFrameNumbers:               {"OptDivergeFrameNumbers", ComponentNone, PriorityInfo, CategoryOpt, "Distinct frame numbers for each display even under HWC 1.5"},
	CheckDrmShimFail:                     {"DrmShimFail", ComponentTest, PriorityFatal, CategoryTest, "Drm Shim Failure"},
	CheckFrameworkProgError:              {"FrameworkProgError", ComponentTest, PriorityError, CategoryTest, "Error in programming the test framework"},
	CheckInternalError:                   {"InternalError", ComponentTest, PriorityError, CategoryTest, "Internal error detected in shims"},
	CheckCommandLineParam:                {"CommandLineParam", ComponentTest, PriorityError, CategoryTest, "Invalid command-line parameter or option"},
	CheckInternalZOrder:                  {"InternalZOrder", ComponentTest, PriorityError, CategoryTest, "Internal Z-order conflict: Ignore Z-order errors"},
	CheckMdsProtocol:                     {"MdsProtocol", ComponentTest, PriorityError, CategoryTest, "MDS Protocol not followed"},
	CheckTooSlow:                         {"TooSlow", ComponentTest, PriorityError, CategoryTest, "Frame rate too low"},
	CheckObjectLeak:                      {"ObjectLeak", ComponentTest, PriorityWarn, CategoryTest, "Internal data structures have grown very large - possible leak"},
	CheckReplayFail:                      {"ReplayFail", ComponentTest, PriorityFatal, CategoryTest, "Replay Failure"},
	CheckTestBufferAlloc:                 {"TestBufferAlloc", ComponentTest, PriorityError, CategoryTest, "Error in buffer configuration"},
	CheckFacilityNotAvailable:            {"FacilityNotAvailable", ComponentTest, PriorityError, CategoryTest, "Selected option not available in this configuration"},
	CheckHdmiReq:                         {"HdmiReq", ComponentTest, PriorityWarn, CategoryPriWarn, "HDMI not connected - some test features not exercised"},
	CheckScreenNotBigEnough:              {"ScreenNotBigEnough", ComponentTest, PriorityError, CategoryTest, "Screen not big enough to run this test"},
	CheckSessionFail:                     {"SessionFail", ComponentTest, PriorityFatal, CategoryTest, "Fatal Test Failure"},
	CheckTestFail:                        {"TestFail", ComponentTest, PriorityError, CategoryTest, "Test Failure"},
	CheckGlFail:                          {"GlFail", ComponentTest, PriorityWarn, CategoryTest, "GL failure"},
	CheckHwcBind:                         {"HwcBind", ComponentTest, PriorityFatal, CategoryStickyTest, "HWC shim failed run-time linking to real HWC"},
	CheckDrmShimBind:                     {"DrmShimBind", ComponentTest, PriorityFatal, CategoryStickyTest, "Failed run-time linking to DRM"},
	CheckMdsBind:                         {"MdsBind", ComponentTest, PriorityError, CategoryStickyTest, "Failed to bind to Multi-Display Service"},
	CheckHwcServiceBind:                  {"HwcServiceBind", ComponentTest, PriorityError, CategoryStickyTest, "Failed to bind to HWC service"},
	CheckFileError:                       {"FileError", ComponentTest, PriorityError, CategoryTest, "File access error"},
	CheckPngFail:                         {"PngFail", ComponentTest, PriorityError, CategoryTest, "PNG error"},
	CheckSurfaceSender:                   {"SurfaceSender", ComponentTest, PriorityError, CategoryTest, "Surface sender error"},
	CheckUnknownHWCAPICall:               {"UnknownHWCAPICall", ComponentTest, PriorityError, CategoryTest, "Unknown HWC API call"},
	CheckLogParserError:                  {"LogParserError", ComponentTest, PriorityError, CategoryTest, "Log parser error"},
	CheckFenceQueryFail:                  {"FenceQueryFail", ComponentTest, PriorityWarn, CategoryTest, "Failed to query internal fence"},
	CheckTransparencyDetectionFailure:    {"TransparencyDetectionFailure", ComponentTest, PriorityWarn, CategoryPriWarn, "Transparency detection failure"},
	CheckHwcVersion:                      {"HwcVersion", ComponentTest, PriorityError, CategoryStickyTest, "HWC version inconsistency detected"},
	CheckAsyncEventsDropped:              {"AsyncEventsDropped", ComponentTest, PriorityWarn, CategoryTest, "Harness dropped async events because they could not be consumed fast enough"},
	CheckBadPointerFormat:                {"BadPointerFormat", ComponentTest, PriorityError, CategoryTest, "HWC used incorrect formatting for a pointer value: may be truncated"},
	CheckOnSetLatency:                    {"OnSetLatency", ComponentHWC, PriorityWarn, CategoryHwc, "Check OnSet Latency"},
	CheckCompToDisplayedBuf:              {"CompToDisplayedBuf", ComponentHWC, PriorityError, CategoryHwc, "HWC composed to on-screen buffer"},
	CheckDelayedOnSetComp:                {"DelayedOnSetComp", ComponentHWC, PriorityWarn, CategoryHwc, "HWC has signalled retire fence too early - OR onSet completion delayed by >5ms - frame not validated"},
	CheckDrmIoctlGemWaitLatency:          {"DrmIoctlGemWaitLatency", ComponentHWC, PriorityError, CategoryHwc, "Rendering took >1sec"},
	CheckFenceAllocation:                 {"FenceAllocation", ComponentHWC, PriorityError, CategoryHwc, "Fence allocation failure"},
	CheckFenceLeak:                       {"FenceLeak", ComponentHWC, PriorityWarn, CategoryHwc, "Fence leak - fences not closed during test"},
	CheckFenceNonZero:                    {"FenceNonZero", ComponentHWC, PriorityError, CategoryHwc, "Zero fence detected. Has stdin been closed?"},
	CheckFlipFences:                      {"FlipFences", ComponentHWC, PriorityError, CategoryHwc, "Retire fence state inconsistency with HWC log"},
	CheckUnknownFlipSource:               {"UnknownFlipSource", ComponentHWC, PriorityError, CategoryHwc, "No source layer list for the flip we are trying to validate"},
	CheckGrallocDetails:                  {"GrallocDetails", ComponentBuffers, PriorityError, CategoryHwc, "Failure to obtain correct gralloc details"},
	CheckHwcGeneratesVSync:               {"HwcGeneratesVSync", ComponentHWC, PriorityWarn, CategoryHwc, "Display has generated VSync but HWC has not forwarded it within the timeout"},
	CheckLayerDisplay:                    {"LayerDisplay", ComponentHWC, PriorityError, CategoryHwc, "Missing or extra layers on the screen"},
	CheckReleaseFenceWait:                {"ReleaseFenceWait", ComponentHWC, PriorityInfo, CategoryHwc, "Wait required on previous Release Fence before buffer can be filled"},
	CheckReleaseFenceTimeout:             {"ReleaseFenceTimeout", ComponentHWC, PriorityWarn, CategoryHwc, "Wait >100ms required on previous Release Fence before buffer can be filled"},
	CheckRetireFenceSignalledPromptly:    {"RetireFenceSignalledPromptly", ComponentHWC, PriorityError, CategoryHwc, "Retire fence not signalled for many frames"},
	CheckRunAbort:                        {"RunAbort", ComponentHWC, PriorityFatal, CategoryHwc, "Test aborted or locked up - did not complete successfully"},
	CheckSFRestarted:                     {"SFRestarted", ComponentHWC, PriorityFatal, CategoryHwc, "Surface Flinger Restarted"},
	CheckSkipLayerUsage:                  {"SkipLayerUsage", ComponentHWC, PriorityWarn, CategoryHwc, "Skip layer used from a different frame"},
	CheckTooManyConsecutiveDroppedFrames: {"TooManyConsecutiveDroppedFrames", ComponentHWC, PriorityError, CategoryHwc, "Too many consecutive dropped frames"},
	CheckTooManyDroppedFrames:            {"TooManyDroppedFrames", ComponentHWC, PriorityError, CategoryHwc, "Most frames were dropped"},
	CheckExtendedModeExpectation:         {"ExtendedModeExpectation", ComponentHWC, PriorityError, CategoryHwc, "Test expectation of mode selection differs from HWC implementation"},
	CheckHotPlugTimeout:                  {"HotPlugTimeout", ComponentHWC, PriorityError, CategoryHwc, "Hot plug/unplug attempt not completed inside timeout period"},
	CheckNoRetireFenceOnPrimary:          {"NoRetireFenceOnPrimary", ComponentHWC, PriorityError, CategoryHwc, "No retire fence on primary display"},
	CheckDDRMode:                         {"DDRMode", ComponentHWC, PriorityError, CategoryHwc, "Wrong DDR mode selected"},
	CheckUnnecessaryComposition:          {"UnnecessaryComposition", ComponentHWC, PriorityError, CategoryHwc, "HWC used composition unnecessarily"},
	CheckCompositionBlend:                {"CompositionBlend", ComponentHWC, PriorityError, CategoryHwc, "Layer was composed with incorrect blending"},
	CheckSfFallback:                      {"SfFallback", ComponentHWC, PriorityError, CategoryHwc, "SurfaceFlinger used as fallback composer"},
	CheckHwcInterface:                    {"HwcInterface", ComponentHWC, PriorityError, CategoryHwc, "HWC interface returning unsupported values"},
	CheckTooManySnapshotsRestored:        {"TooManySnapshotsRestored", ComponentHWC, PriorityError, CategoryHwc, "Looks like rotation animation snapshot code is too aggressive"},
	CheckSrcBufAlsoTgt:                   {"SrcBufAlsoTgt", ComponentHWC, PriorityError, CategoryHwc, "Composition source buffer is also a render target of the same composition"},
	CheckLLQOverflow:                     {"LLQOverflow", ComponentHWC, PriorityError, CategoryHwc, "Layer list queue overflow. Some layer lists are not being consumed."},
	CheckInvalidCrtc:                     {"InvalidCrtc", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: Invalid CRTC"},
	CheckDrmCallSuccess:                  {"DrmCallSuccess", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: call reported failure"},
	CheckPlaneIdInvalidForCrtc:           {"PlaneIdInvalidForCrtc", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: Plane Id not valid for CRTC"},
	CheckIoctlParameters:                 {"IoctlParameters", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: Ioctl parameters incorrect"},
	CheckPlaneOffScreen:                  {"PlaneOffScreen", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: Plane is wholly off screen"},
	CheckSetPlaneNeededAfterRotate:       {"SetPlaneNeededAfterRotate", ComponentHWC, PriorityError, CategoryHwcDisplay, "DRM: Setplane needed after rotate"},
	CheckPlaneCrop:                       {"PlaneCrop", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layer was displayed with an incorrect source crop"},
	CheckPlaneScale:                      {"PlaneScale", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layer was displayed with incorrect scaling"},
	CheckPlaneTransform:                  {"PlaneTransform", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layer was displayed with incorrect flip/rotation"},
	CheckPlaneBlending:                   {"PlaneBlending", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layer was displayed with incorrect blending"},
	CheckPixelAlpha:                      {"PixelAlpha", ComponentHWC, PriorityError, CategoryHwcDisplay, "Pixel alpha was lost for layer"},
	CheckPlaneAlpha:                      {"PlaneAlpha", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layer was displayed with incorrect plane alpha"},
	CheckInvalidBlend:                    {"InvalidBlend", ComponentHWC, PriorityError, CategoryHwcDisplay, "Unrecognised blend function used in drmModeAtomic"},
	CheckBackHwStackPixelFormat:          {"BackHwStackPixelFormat", ComponentHWC, PriorityWarn, CategoryHwcDisplay, "Plane at back of HW stack should be an opaque format"},
	CheckMainPlaneFullScreen:             {"MainPlaneFullScreen", ComponentHWC, PriorityError, CategoryHwcDisplay, "Main plane allocated buffer size is not full screen"},
	CheckBufferTooSmall:                  {"BufferTooSmall", ComponentHWC, PriorityError, CategoryHwcDisplay, "Crop should not be bigger than buffer size"},
	CheckDisplayCropEqualDisplayFrame:    {"DisplayCropEqualDisplayFrame", ComponentHWC, PriorityError, CategoryHwcDisplay, "Hardware display plane requires source crop and display frame to be same size"},
	CheckLayerOrder:                      {"LayerOrder", ComponentHWC, PriorityError, CategoryHwcDisplay, "Layers have been displayed with an incorrect Z-order"},
	CheckDrmFence:                        {"DrmFence", ComponentHWC, PriorityError, CategoryHwcDisplay, "Fence state incompatible with DRM call"},
	CheckDisplayDisableInconsistency:     {"DisplayDisableInconsistency", ComponentHWC, PriorityError, CategoryHwcDisplay, "Display was disabled when blanking not requested"},
	CheckExtendedModePanelControl:        {"ExtendedModePanelControl", ComponentHWC, PriorityError, CategoryHwcDisplay, "Extended Mode panel control"},
	CheckDisabledDisplayBlanked:          {"DisabledDisplayBlanked", ComponentHWC, PriorityWarn, CategoryHwcDisplay, "Disabled display was not blanked - existing content should be removed when display disabled"},
	CheckUnblankingLatency:               {"UnblankingLatency", ComponentHWC, PriorityError, CategoryHwcDisplay, "Display unblanking (resume) time too long"},
	CheckEsdRecovery:                     {"EsdRecovery", ComponentHWC, PriorityError, CategoryHwcDisplay, "ESD recovery should complete within 3sec of UEvent"},
	CheckFirstFrame32bit:                 {"FirstFrame32bit", ComponentHWC, PriorityError, CategoryHwcDisplay, "First frame after drmModeSetCrtc must be 32-bit"},
	CheckPanelFitterConstantAspectRatio:  {"PanelFitterConstantAspectRatio", ComponentHWC, PriorityError, CategoryHwcDisplay, "Panel fitter cannot change aspect ratio of the source image"},
	CheckPanelFitterMode:                 {"PanelFitterMode", ComponentHWC, PriorityError, CategoryHwcDisplay, "Wrong panel fitter mode used"},
	CheckPanelFitterUnnecessary:          {"PanelFitterUnnecessary", ComponentHWC, PriorityError, CategoryHwcDisplay, "Panel fitter used when no scaling is required"},
	CheckPanelFitterOutOfSpec:            {"PanelFitterOutOfSpec", ComponentHWC, PriorityWarn, CategoryHwcDisplay, "Panel fitter use with main plane enabled is not recommended"},
	CheckDisplayMode:                     {"DisplayMode", ComponentHWC, PriorityError, CategoryHwcDisplay, "Wrong display mode selected"},
	CheckPlaneFormatNotSupported:         {"PlaneFormatNotSupported", ComponentHWC, PriorityError, CategoryHwcDisplay, "Display plane does not support the buffer's format"},
	CheckBadScalerSourceSize:             {"BadScalerSourceSize", ComponentHWC, PriorityError, CategoryHwcDisplay, "Invalid source size for hardware scaling"},
	CheckScalingFactor:                   {"ScalingFactor", ComponentHWC, PriorityError, CategoryHwcDisplay, "Hardware scaling factor out of permitted range"},
	CheckNumScalersUsed:                  {"NumScalersUsed", ComponentHWC, PriorityError, CategoryHwcDisplay, "Too many scalers used"},
	CheckSetDisplayParams:                {"SetDisplayParams", ComponentHWC, PriorityError, CategoryHwcDisplay, "Invalid parameters in DRM SetDisplay call"},
	CheckNuclearParams:                   {"NuclearParams", ComponentHWC, PriorityError, CategoryHwcDisplay, "Invalid parameters in DRM nuclear call"},
	CheckRCNotSupportedOnPlane:           {"RCNotSupportedOnPlane", ComponentHWC, PriorityError, CategoryHwcDisplay, "RC content sent to plane that does not support Render Compression"},
	CheckRCNormalBufSentToRCPlane:        {"RCNormalBufSentToRCPlane", ComponentHWC, PriorityError, CategoryHwcDisplay, "Non Render Compressed buffer sent to RC plane"},
	CheckRCWithInvalidRotation:           {"RCWithInvalidRotation", ComponentHWC, PriorityError, CategoryHwcDisplay, "RC content can not be sent to a plane with 90/270 degree rotation"},
	CheckRCInvalidFormat:                 {"RCInvalidFormat", ComponentHWC, PriorityError, CategoryHwcDisplay, "Only RGB8888 Y-tiled formats are render compressible"},
	CheckRCAuxDetailsMismatch:            {"RCAuxDetailsMismatch", ComponentHWC, PriorityError, CategoryHwcDisplay, "Aux buffer details do not match those stored in Gralloc"},
	CheckRCInvalidTiling:                 {"RCInvalidTiling", ComponentHWC, PriorityError, CategoryHwcDisplay, "Tiling format is not valid for use with Render Compression"},
	CheckRCSentToVPP:                     {"RCSentToVPP", ComponentHWC, PriorityError, CategoryHwcDisplay, "Render Compressed buffers can not be sent to VPP"},
	CheckNoFlipWhileDPMSDisabled:         {"NoFlipWhileDPMSDisabled", ComponentHWC, PriorityError, CategoryHwcDisplay, "drmModeSetDisplay/drmModeAtomic while DPMS disabled"},
	CheckHwcCompMatchesRef:               {"HwcCompMatchesRef", ComponentHWC, PriorityError, CategoryOpt, "HWC Composition target differs from reference composer"},
	CheckLayerOnScreen:                   {"LayerOnScreen", ComponentSF, PriorityWarn, CategorySf, "SF error: layer is wholly off screen"},
	CheckLayerPartlyOnScreen:             {"LayerPartlyOnScreen", ComponentSF, PriorityInfo, CategorySf, "SF layer is partly off screen"},
	CheckSfCompMatchesRef:                {"SfCompMatchesRef", ComponentSF, PriorityError, CategoryOpt, "SF Composition target differs from reference composer"},
	CheckHwcParams:                       {"HwcParams", ComponentSF, PriorityError, CategorySf, "Invalid HWC API parameters"},
	CheckCRC:                             {"CRC", ComponentDisplays, PriorityError, CategoryOpt, "Potential flicker detected by display CRC checking"},
	CheckFlicker:                         {"Flicker", ComponentDisplays, PriorityError, CategoryDisplays, "Potential flicker detected (Unclassified)"},
	CheckFlickerClrDepth:                 {"FlickerClrDepth", ComponentDisplays, PriorityError, CategoryDisplays, "Potential flicker detected (colour depth change)"},
	CheckFlickerMaxFifo:                  {"FlickerMaxFifo", ComponentDisplays, PriorityWarn, CategoryDisplays, "Potential flicker detected (disabling MAX FIFO)"},
	CheckVSyncTiming:                     {"VSyncTiming", ComponentDisplays, PriorityWarn, CategoryDisplays, "VSync timing concern"},
	CheckDispGeneratesVSync:              {"DispGeneratesVSync", ComponentDisplays, PriorityWarn, CategoryDisplays, "No VSync received from Display within timeout"},
	CheckTimelyPageFlip:                  {"TimelyPageFlip", ComponentDisplays, PriorityWarn, CategoryDisplays, "No Page Flip event received from Display within timeout"},
	CheckDispGeneratesPageFlip:           {"DispGeneratesPageFlip", ComponentDisplays, PriorityError, CategoryDisplays, "No Page Flip event received between consecutive calls to SetDisplay"},
	CheckDrmSetDisplayLockup:             {"DrmSetDisplayLockup", ComponentDisplays, PriorityFatal, CategoryDisplays, "drmModeSetDisplay/drmModeAtomic did not return within timeout period"},
	CheckDPMSLockup:                      {"DPMSLockup", ComponentDisplays, PriorityFatal, CategoryDisplays, "DPMS Enable/disable did not return within timeout period"},
	CheckDrmSetPropLatency:               {"DrmSetPropLatency", ComponentDisplays, PriorityInfo, CategoryDisplays, "drmModeSetProperty took >1ms"},
	CheckDrmSetPropLatencyX:              {"DrmSetPropLatencyX", ComponentDisplays, PriorityWarn, CategoryDisplays, "drmModeSetProperty took >10ms"},
	CheckDrmIoctlLatency:                 {"DrmIoctlLatency", ComponentDisplays, PriorityInfo, CategoryDisplays, "drmIoctl took >1ms"},
	CheckDrmIoctlLatencyX:                {"DrmIoctlLatencyX", ComponentDisplays, PriorityWarn, CategoryDisplays, "drmIoctl took >10ms"},
	CheckDrmFbId:                         {"DrmFbId", ComponentBuffers, PriorityError, CategoryBuffers, "DRM: Framebuffer Id consistency problem"},
	CheckBufferObjectUnknown:             {"BufferObjectUnknown", ComponentBuffers, PriorityError, CategoryBuffers, "Buffer object handle unknown"},
	CheckAllocFail:                       {"AllocFail", ComponentBuffers, PriorityError, CategoryBuffers, "Gralloc buffer allocation failure - composition failed"},
	CheckBufferQueryFail:                 {"BufferQueryFail", ComponentBuffers, PriorityError, CategoryBuffers, "Gralloc buffer query failure"},
}

// String returns the check's formal name
func (c Check) String() string {
	if !c.Valid() {
		return fmt.Sprintf("Check(%d)", int(c))
	}
	return checkTable[c].name
}

// Valid reports whether c is inside the table
func (c Check) Valid() bool {
	return c >= 0 && c < NumChecks
}

// Description returns the human readable text printed in reports
func (c Check) Description() string {
	if !c.Valid() {
		return ""
	}
	return checkTable[c].description
}

// Component returns the component the check belongs to
func (c Check) Component() Component {
	if !c.Valid() {
		return ComponentNone
	}
	return checkTable[c].component
}

// DefaultPriority returns the priority a fresh Config assigns
func (c Check) DefaultPriority() Priority {
	if !c.Valid() {
		return PriorityError
	}
	return checkTable[c].priority
}

// Category returns the check's category
func (c Check) Category() Category {
	if !c.Valid() {
		return CategoryTest
	}
	return checkTable[c].category
}
