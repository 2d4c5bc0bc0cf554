package gtfs

// DirectionID distinguishes between trips going in opposite directions along
// the same route.
type DirectionID uint8

const (
	DirectionIDUnspecified DirectionID = 0
	DirectionIDTrue        DirectionID = 1
	DirectionIDFalse       DirectionID = 2
)

func parseDirectionID(s string) DirectionID {
	switch s {
	case "0":
		return DirectionIDFalse
	case "1":
		return DirectionIDTrue
	default:
		return DirectionIDUnspecified
	}
}

func (d DirectionID) String() string {
	switch d {
	case DirectionIDTrue:
		return "TRUE"
	case DirectionIDFalse:
		return "FALSE"
	default:
		return "UNSPECIFIED"
	}
}

// RouteType describes the type of a route.
//
// This is a Go representation of the enum described in the `route_type` field of `routes.txt`.
type RouteType int32

const (
	RouteType_Tram       RouteType = 0
	RouteType_Subway     RouteType = 1
	RouteType_Rail       RouteType = 2
	RouteType_Bus        RouteType = 3
	RouteType_Ferry      RouteType = 4
	RouteType_CableTram  RouteType = 5
	RouteType_AerialLift RouteType = 6
	RouteType_Funicular  RouteType = 7
	RouteType_TrolleyBus RouteType = 11
	RouteType_Monorail   RouteType = 12

	RouteType_Unknown RouteType = 10000
)

func parseRouteType(s string) RouteType {
	switch s {
	case "0":
		return RouteType_Tram
	case "1":
		return RouteType_Subway
	case "2":
		return RouteType_Rail
	case "3":
		return RouteType_Bus
	case "4":
		return RouteType_Ferry
	case "5":
		return RouteType_CableTram
	case "6":
		return RouteType_AerialLift
	case "7":
		return RouteType_Funicular
	case "11":
		return RouteType_TrolleyBus
	case "12":
		return RouteType_Monorail
	default:
		return RouteType_Unknown
	}
}

func (t RouteType) String() string {
	switch t {
	case RouteType_Tram:
		return "TRAM"
	case RouteType_Subway:
		return "SUBWAY"
	case RouteType_Rail:
		return "RAIL"
	case RouteType_Bus:
		return "BUS"
	case RouteType_Ferry:
		return "FERRY"
	case RouteType_CableTram:
		return "CABLE_TRAM"
	case RouteType_AerialLift:
		return "AERIAL_LIFT"
	case RouteType_Funicular:
		return "FUNICULAR"
	case RouteType_TrolleyBus:
		return "TROLLEY_BUS"
	case RouteType_Monorail:
		return "MONORAIL"
	default:
		return "UNKNOWN"
	}
}

// StopType describes the type of a stop.
//
// This is a Go representation of the enum described in the `location_type` field of `stops.txt`.
type StopType int32

const (
	StopType_Stop           StopType = 0
	StopType_Station        StopType = 1
	StopType_EntranceOrExit StopType = 2
	StopType_GenericNode    StopType = 3
	StopType_BoardingArea   StopType = 4
	StopType_Platform       StopType = 5
)

func parseStopType(s string, hasParentStop bool) StopType {
	switch s {
	case "1":
		return StopType_Station
	case "2":
		return StopType_EntranceOrExit
	case "3":
		return StopType_GenericNode
	case "4":
		return StopType_BoardingArea
	default:
		if hasParentStop {
			return StopType_Platform
		}
		return StopType_Stop
	}
}

func (t StopType) String() string {
	switch t {
	case StopType_Stop:
		return "STOP"
	case StopType_Platform:
		return "PLATFORM"
	case StopType_Station:
		return "STATION"
	case StopType_EntranceOrExit:
		return "ENTRANCE_OR_EXIT"
	case StopType_GenericNode:
		return "GENERIC_NODE"
	case StopType_BoardingArea:
		return "BOARDING_AREA"
	default:
		return "UNKNOWN"
	}
}
