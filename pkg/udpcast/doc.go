// Package udpcast sends and receives raw UDP datagrams on a local network.
//
// A Broadcaster fires datagrams at the limited broadcast address
// (255.255.255.255) on a port. A Listener binds a port on all interfaces and
// hands each datagram that arrives to a Handler, one at a time, in arrival
// order. There is no framing, acknowledgment or retry: a send succeeds once
// the local stack accepts the packet.
//
// Sending:
//
//	err := udpcast.Broadcast(ctx, udpcast.BroadcastAddr, 5559, []byte("hello"))
//
// Listening until ctx is cancelled:
//
//	l, err := udpcast.NewListener(udpcast.DefaultListenerConfig(),
//	    udpcast.NewTextReporter(os.Stdout, "", false))
//	if err != nil {
//	    return err
//	}
//	return l.Run(ctx)
//
// Service wraps a Listener with Start/Stop/Reload for long-running processes.
package udpcast
